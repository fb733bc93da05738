package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	DefaultCropsSubDir   = "face_crops"
	DefaultSourcesSubDir = "session_images"
)

const (
	defaultSessionQueueSize   = 100
	defaultNumSessionWorkers  = 2
	defaultMaxFacesPerImage   = 15
	defaultMinFaceEdgePx      = 60
	defaultJobTimeoutSeconds  = 120
	defaultStalenessMinutes   = 5
	defaultImageFetchRetries  = 2
	defaultHighThreshold      = 0.40
	defaultMediumThreshold    = 0.55
	defaultBlurThreshold      = 50.0
	defaultThresholdVersion   = "v1"
	defaultEmbeddingModelName = "arcface"
)

type Config struct {
	// database path
	DatabasePath string

	// media storage configuration
	MediaStoragePath string // primary root for stored assets (face crops, session images)
	CropsPath        string // full-calculated path for face crops
	SourcesPath      string // full-calculated path for session source images

	// detection settings
	MaxFacesPerImage int
	MinFaceEdgePx    int
	BlurThreshold    float64

	// matching thresholds (live config; snapshotted into each session at dispatch)
	HighThreshold    float64
	MediumThreshold  float64
	ThresholdVersion string

	// worker settings
	SessionQueueSize  int
	NumSessionWorkers int
	JobTimeout        time.Duration
	StalenessWindow   time.Duration
	ImageFetchRetries int

	// face detection model paths (DNN)
	FaceDNNNetConfigPath string
	FaceDNNNetModelPath  string

	// face recognition (embedding) model
	RecognitionModelPath string
	RecognitionModelName string
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %g. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	dbPath := getEnvOrDefault("DATABASE_PATH", "attendance.db")

	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	cropsSubDir := getEnvOrDefault("CROPS_SUBDIR", DefaultCropsSubDir)
	absCropsPath := filepath.Join(absMediaStorage, cropsSubDir)

	sourcesSubDir := getEnvOrDefault("SOURCES_SUBDIR", DefaultSourcesSubDir)
	absSourcesPath := filepath.Join(absMediaStorage, sourcesSubDir)

	high := getEnvFloatOrDefault("MATCH_HIGH_THRESHOLD", defaultHighThreshold)
	medium := getEnvFloatOrDefault("MATCH_MEDIUM_THRESHOLD", defaultMediumThreshold)
	if high >= medium {
		return Config{}, fmt.Errorf("MATCH_HIGH_THRESHOLD (%g) must be below MATCH_MEDIUM_THRESHOLD (%g)", high, medium)
	}

	faceDNNConfig := getEnvOrDefault("FACE_DNN_CONFIG_PATH", "./models/deploy.prototxt.txt")
	faceDNNModel := getEnvOrDefault("FACE_DNN_MODEL_PATH", "./models/res10_300x300_ssd_iter_140000_fp16.caffemodel")
	recognitionModel := getEnvOrDefault("RECOGNITION_MODEL_PATH", "./models/arcface.onnx")

	cfg := Config{
		DatabasePath:         dbPath,
		MediaStoragePath:     absMediaStorage,
		CropsPath:            absCropsPath,
		SourcesPath:          absSourcesPath,
		MaxFacesPerImage:     getEnvIntOrDefault("MAX_FACES_PER_IMAGE", defaultMaxFacesPerImage),
		MinFaceEdgePx:        getEnvIntOrDefault("MIN_FACE_EDGE_PX", defaultMinFaceEdgePx),
		BlurThreshold:        getEnvFloatOrDefault("BLUR_THRESHOLD", defaultBlurThreshold),
		HighThreshold:        high,
		MediumThreshold:      medium,
		ThresholdVersion:     getEnvOrDefault("THRESHOLD_VERSION", defaultThresholdVersion),
		SessionQueueSize:     getEnvIntOrDefault("SESSION_QUEUE_SIZE", defaultSessionQueueSize),
		NumSessionWorkers:    getEnvIntOrDefault("NUM_SESSION_WORKERS", defaultNumSessionWorkers),
		JobTimeout:           time.Duration(getEnvIntOrDefault("JOB_TIMEOUT_SECONDS", defaultJobTimeoutSeconds)) * time.Second,
		StalenessWindow:      time.Duration(getEnvIntOrDefault("STALENESS_MINUTES", defaultStalenessMinutes)) * time.Minute,
		ImageFetchRetries:    getEnvIntOrDefault("IMAGE_FETCH_RETRIES", defaultImageFetchRetries),
		FaceDNNNetConfigPath: faceDNNConfig,
		FaceDNNNetModelPath:  faceDNNModel,
		RecognitionModelPath: recognitionModel,
		RecognitionModelName: getEnvOrDefault("RECOGNITION_MODEL_NAME", defaultEmbeddingModelName),
	}

	return cfg, nil
}
