package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/classkit/attendancebackend/config"
	"github.com/classkit/attendancebackend/database"
	"github.com/classkit/attendancebackend/handlers"
	"github.com/classkit/attendancebackend/media"
	"github.com/classkit/attendancebackend/models"
	"github.com/classkit/attendancebackend/realtime"
	"github.com/classkit/attendancebackend/repository"
	"github.com/classkit/attendancebackend/services"
	"github.com/classkit/attendancebackend/workers"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	storagePaths := []string{cfg.CropsPath, cfg.SourcesPath, filepath.Dir(cfg.DatabasePath)}
	for _, p := range storagePaths {
		log.Printf("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			log.Fatalf("FATAL: Failed to create storage directory %s: %v", p, err)
		}
	}

	gormDB, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(gormDB); err != nil {
		log.Fatalf("FATAL: Failed to run database migrations: %v", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatalf("FATAL: Failed to get underlying sql.DB: %v", err)
	}
	defer sqlDB.Close()

	mediaSubDirs := map[media.AssetType]string{
		media.AssetTypeFaceCrop:     filepath.Base(cfg.CropsPath),
		media.AssetTypeSessionImage: filepath.Base(cfg.SourcesPath),
	}
	mediaStore, err := media.NewLocalStorage(cfg.MediaStoragePath, mediaSubDirs)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize media store: %v", err)
	}

	log.Printf("Loading DNN face detector from %s", cfg.FaceDNNNetModelPath)
	detector := media.NewDNNFaceDetector(cfg.FaceDNNNetConfigPath, cfg.FaceDNNNetModelPath, media.DetectorConfig{
		MaxFaces:      cfg.MaxFacesPerImage,
		MinFaceEdgePx: cfg.MinFaceEdgePx,
		BlurThreshold: cfg.BlurThreshold,
	})
	defer detector.Close()
	if !detector.Ready() {
		log.Printf("WARNING: face detector failed to load; sessions will fail until models are available")
	}

	log.Printf("Loading face recognition model '%s' from %s", cfg.RecognitionModelName, cfg.RecognitionModelPath)
	recognizer := media.NewFaceRecognitionModel(cfg.RecognitionModelPath, cfg.RecognitionModelName, models.EmbeddingDim)
	defer recognizer.Close()
	if !recognizer.Ready() {
		log.Printf("WARNING: face recognition model failed to load; sessions will fail until models are available")
	}

	sessionRepo := repository.NewSessionRepository(gormDB)
	detectionRepo := repository.NewDetectionRepository(gormDB)
	embeddingRepo := repository.NewEmbeddingRepository(gormDB)
	rosterRepo := repository.NewRosterRepository(gormDB)
	attendanceRepo := repository.NewAttendanceRepository(gormDB)
	jobRepo := repository.NewEnrollmentJobRepository(gormDB)

	pipeline := services.NewPipeline(
		sessionRepo, detectionRepo, embeddingRepo, jobRepo,
		detector, recognizer,
		services.StoreImageSource{Store: mediaStore},
		mediaStore,
		services.RetryPolicy{MaxRetries: cfg.ImageFetchRetries, Backoff: 2 * time.Second},
	)

	hub := realtime.NewHub()
	go hub.Run()
	pipeline.SetNotifier(hub)

	log.Printf("Initializing attendance worker pool (Workers: %d, Queue Size: %d)...", cfg.NumSessionWorkers, cfg.SessionQueueSize)
	processor := workers.NewAttendanceProcessor(cfg, pipeline, cfg.SessionQueueSize, cfg.NumSessionWorkers)
	defer processor.Stop()

	sessionService := services.NewSessionService(cfg, sessionRepo, rosterRepo, sqlDB, processor)
	reviewService := services.NewReviewService(sessionRepo, detectionRepo, rosterRepo, attendanceRepo)
	enrollmentService := services.NewEnrollmentService(jobRepo, embeddingRepo, rosterRepo, sqlDB, processor)
	statusService := services.NewStatusService(cfg, sessionRepo, embeddingRepo, detector, recognizer)

	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Storing face crops in: %s", cfg.CropsPath)
	log.Printf("Matching thresholds: high < %.2f, medium < %.2f (%s)", cfg.HighThreshold, cfg.MediumThreshold, cfg.ThresholdVersion)

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"}, //TODO: configurable
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsHandler.Handler)

	sessionHandler := &handlers.SessionHandler{Sessions: sessionService, Reviews: reviewService}
	enrollmentHandler := &handlers.EnrollmentHandler{Enrollments: enrollmentService}
	statusHandler := &handlers.StatusHandler{Status: statusService}

	r.Route("/api", func(r chi.Router) {
		r.Route("/attendance", func(r chi.Router) {
			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", sessionHandler.CreateSession)
				r.Get("/", sessionHandler.ListSessions)
				r.Get("/pending-review", sessionHandler.ListPendingReview)
				r.Route("/{session_id}", func(r chi.Router) {
					r.Get("/", sessionHandler.GetSession)
					r.Get("/records", sessionHandler.ListSessionRecords)
					r.Post("/confirm", sessionHandler.ConfirmSession)
					r.Post("/reprocess", sessionHandler.ReprocessSession)
				})
			})
			r.Get("/status", statusHandler.GetStatus)
			r.Get("/events", hub.ServeWS)
		})

		r.Route("/enrollments", func(r chi.Router) {
			r.Post("/", enrollmentHandler.CreateEnrollment)
			r.Get("/", enrollmentHandler.ListEnrollments)
			r.Delete("/{enrollment_id}", enrollmentHandler.DeleteEnrollment)
			r.Get("/jobs/{job_id}", enrollmentHandler.GetEnrollmentJob)
		})

		cropsSubDir := filepath.Base(cfg.CropsPath)
		r.Get("/crops/*", handlers.AssetServer(cfg.MediaStoragePath, cropsSubDir, "/api/crops/"))
		log.Printf("Registered face crop server at /api/crops/*")
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	serverAddr := ":" + port
	fmt.Printf("Server starting on http://localhost:%s\n", port)
	log.Printf("Server listening on %s", serverAddr)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}
