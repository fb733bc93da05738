package workers

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/classkit/attendancebackend/config"
	"github.com/classkit/attendancebackend/services"
)

// TaskType constants
const (
	TaskSession    = "session"
	TaskEnrollment = "enrollment"
)

type AttendanceJob struct {
	TaskType string
	ID       string // session id or enrollment job id
}

// AttendanceProcessor runs session and enrollment pipeline jobs on a fixed
// pool of workers. It implements services.Dispatcher.
type AttendanceProcessor struct {
	JobQueue chan AttendanceJob
	Config   config.Config
	Pipeline *services.Pipeline
	Wg       sync.WaitGroup
	StopChan chan struct{}
	Pending  map[string]bool
	Mutex    sync.Mutex
}

var _ services.Dispatcher = (*AttendanceProcessor)(nil)

func NewAttendanceProcessor(cfg config.Config, pipeline *services.Pipeline, queueSize, numWorkers int) *AttendanceProcessor {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	proc := &AttendanceProcessor{
		JobQueue: make(chan AttendanceJob, queueSize),
		Config:   cfg,
		Pipeline: pipeline,
		StopChan: make(chan struct{}),
		Pending:  make(map[string]bool),
	}
	proc.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go proc.worker(i)
	}
	log.Printf("Started %d attendance worker(s) with queue size %d", numWorkers, queueSize)
	return proc
}

func (ap *AttendanceProcessor) worker(id int) {
	defer ap.Wg.Done()

	log.Printf("Attendance worker %d started", id)
	for {
		select {
		case job, ok := <-ap.JobQueue:
			if !ok {
				log.Printf("Attendance worker %d stopping: Job queue closed", id)
				return
			}

			log.Printf("Worker %d: Received job type '%s' for: %s", id, job.TaskType, job.ID)
			ap.runJob(id, job)

			ap.Mutex.Lock()
			delete(ap.Pending, pendingKey(job))
			ap.Mutex.Unlock()

		case <-ap.StopChan:
			log.Printf("Attendance worker %d stopping: Stop signal received", id)
			return
		}
	}
}

// runJob executes one job under the configured timeout. A panic in the
// pipeline must not take the worker down: it is recovered and settled as a
// terminal failure so the job never sits in PROCESSING forever.
func (ap *AttendanceProcessor) runJob(id int, job AttendanceJob) {
	ctx, cancel := context.WithTimeout(context.Background(), ap.Config.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Worker %d: PANIC in %s job %s: %v", id, job.TaskType, job.ID, r)
			cause := fmt.Errorf("internal processing error: %v", r)
			switch job.TaskType {
			case TaskSession:
				ap.Pipeline.FailSession(job.ID, cause)
			case TaskEnrollment:
				ap.Pipeline.FailEnrollment(job.ID, cause)
			}
		}
	}()

	switch job.TaskType {
	case TaskSession:
		ap.Pipeline.ProcessSession(ctx, job.ID)
	case TaskEnrollment:
		ap.Pipeline.ProcessEnrollment(ctx, job.ID)
	default:
		log.Printf("Worker %d: ERROR unknown task type '%s' for %s", id, job.TaskType, job.ID)
	}
}

func pendingKey(job AttendanceJob) string {
	return fmt.Sprintf("%s:%s", job.TaskType, job.ID)
}

// QueueJob queues a job if the same one is not already pending
func (ap *AttendanceProcessor) QueueJob(job AttendanceJob) error {
	key := pendingKey(job)

	ap.Mutex.Lock()
	if ap.Pending[key] {
		ap.Mutex.Unlock()
		log.Printf("Job '%s' for %s already pending, skipping", job.TaskType, job.ID)
		return nil
	}
	ap.Pending[key] = true
	ap.Mutex.Unlock()

	select {
	case ap.JobQueue <- job:
		log.Printf("Queued task '%s' for: %s", job.TaskType, job.ID)
		return nil
	default:
		ap.Mutex.Lock()
		delete(ap.Pending, key)
		ap.Mutex.Unlock()
		return fmt.Errorf("job queue full, could not queue %s job %s", job.TaskType, job.ID)
	}
}

// EnqueueSession implements services.Dispatcher
func (ap *AttendanceProcessor) EnqueueSession(sessionID string) error {
	return ap.QueueJob(AttendanceJob{TaskType: TaskSession, ID: sessionID})
}

// EnqueueEnrollment implements services.Dispatcher
func (ap *AttendanceProcessor) EnqueueEnrollment(jobID string) error {
	return ap.QueueJob(AttendanceJob{TaskType: TaskEnrollment, ID: jobID})
}

func (ap *AttendanceProcessor) Stop() {
	log.Println("Stopping attendance workers...")
	close(ap.StopChan)
	ap.Wg.Wait()
	log.Println("All attendance workers stopped")
}
