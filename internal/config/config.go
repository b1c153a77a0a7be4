package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server          ServerConfig          `yaml:"server"`
	Database        DatabaseConfig        `yaml:"database"`
	NATS            NATSConfig            `yaml:"nats"`
	MinIO           MinIOConfig           `yaml:"minio"`
	Recording       RecordingConfig       `yaml:"recording"`
	FaceRecognition FaceRecognitionConfig `yaml:"face_recognition"`
	Vision          VisionConfig          `yaml:"vision"`
	Retention       RetentionConfig       `yaml:"retention"`
	Logging         LoggingConfig         `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// NATSConfig is optional; an empty URL disables event publishing.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// MinIOConfig is optional; an empty endpoint disables the face archive.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type RecordingConfig struct {
	Root            string        `yaml:"root"`
	Enabled         *bool         `yaml:"enabled"`
	SegmentDuration time.Duration `yaml:"segment_duration"`
	ContinuousMode  string        `yaml:"continuous_mode"`
	MotionCooldown  time.Duration `yaml:"motion_cooldown"`
	StopGrace       time.Duration `yaml:"stop_grace"`
	MinSegmentBytes int64         `yaml:"min_segment_bytes"`
}

// IsEnabled reports the configured recording switch (default on).
func (r RecordingConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

type FaceRecognitionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	QueueSize      int           `yaml:"queue_size"`
	Tolerance      float64       `yaml:"tolerance"`
	FrameInterval  time.Duration `yaml:"frame_interval"`
	FrameWidth     int           `yaml:"frame_width"`
	ExtractTimeout time.Duration `yaml:"extract_timeout"`
	DetectScale    float64       `yaml:"detect_scale"`
	MaxFacesPerID  int           `yaml:"max_faces_per_identity"`
	ScratchDir     string        `yaml:"scratch_dir"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	UseGPU             bool    `yaml:"use_gpu"`
	LibraryPath        string  `yaml:"library_path"`
}

type RetentionConfig struct {
	Days     int    `yaml:"days"`
	Schedule string `yaml:"schedule"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// A missing file is not an error: the service can be configured from env alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "faces"
	}

	r := &cfg.Recording
	if r.Root == "" {
		r.Root = "/recordings"
	}
	if r.SegmentDuration == 0 {
		r.SegmentDuration = 300 * time.Second
	}
	if r.ContinuousMode == "" {
		r.ContinuousMode = "per-camera"
	}
	if r.MotionCooldown == 0 {
		r.MotionCooldown = 15 * time.Second
	}
	if r.StopGrace == 0 {
		r.StopGrace = 10 * time.Second
	}
	if r.MinSegmentBytes == 0 {
		r.MinSegmentBytes = 1000
	}

	f := &cfg.FaceRecognition
	if f.CacheTTL == 0 {
		f.CacheTTL = 60 * time.Second
	}
	if f.MaxConcurrent == 0 {
		f.MaxConcurrent = 2
	}
	if f.QueueSize == 0 {
		f.QueueSize = 32
	}
	if f.Tolerance == 0 {
		f.Tolerance = 0.6
	}
	if f.FrameInterval == 0 {
		f.FrameInterval = 2 * time.Second
	}
	if f.FrameWidth == 0 {
		f.FrameWidth = 1280
	}
	if f.ExtractTimeout == 0 {
		f.ExtractTimeout = 60 * time.Second
	}
	if f.DetectScale == 0 {
		f.DetectScale = 0.5
	}
	if f.MaxFacesPerID == 0 {
		f.MaxFacesPerID = 5
	}
	if f.ScratchDir == "" {
		f.ScratchDir = os.TempDir()
	}

	if cfg.Vision.ModelsDir == "" {
		cfg.Vision.ModelsDir = "models"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}

	if cfg.Retention.Days == 0 {
		cfg.Retention.Days = 30
	}
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = "0 0 3 * * *"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ARCOS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ARCOS_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("ARCOS_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("ARCOS_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("ARCOS_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("ARCOS_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("ARCOS_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("ARCOS_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("ARCOS_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("ARCOS_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("ARCOS_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("ARCOS_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("ARCOS_RECORDINGS_PATH"); v != "" {
		cfg.Recording.Root = v
	}
	if v := os.Getenv("ARCOS_SEGMENT_DURATION_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Recording.SegmentDuration = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("ARCOS_RECORDING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Recording.Enabled = &b
		}
	}
	if v := os.Getenv("ARCOS_CONTINUOUS_RECORDING"); v != "" {
		cfg.Recording.ContinuousMode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("ARCOS_FACE_RECOGNITION_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.FaceRecognition.Enabled = b
		}
	}
	if v := os.Getenv("ARCOS_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("ARCOS_ONNX_LIBRARY"); v != "" {
		cfg.Vision.LibraryPath = v
	}
	if v := os.Getenv("ARCOS_USE_GPU"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Vision.UseGPU = b
		}
	}
	if v := os.Getenv("ARCOS_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retention.Days = n
		}
	}
	if v := os.Getenv("ARCOS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
