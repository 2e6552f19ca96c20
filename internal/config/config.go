package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Enrollment EnrollmentConfig
	Camera     CameraConfig
	Recognizer RecognizerConfig
	Monitor    MonitorConfig
	Actions    ActionConfig
	Database   DatabaseConfig
	Web        WebConfig
	LogFile    string
}

type EnrollmentConfig struct {
	Dir string // directory of reference face images, one identity per file
}

type CameraConfig struct {
	Device         int           // V4L2 device index; -1 means auto-detect 0..3
	SnapshotURL    string        // if set, pull JPEG snapshots over HTTP instead of a local device
	Width          int           // capture width (default 640)
	Height         int           // capture height (default 480)
	AcquireTimeout time.Duration // upper bound on a single frame acquisition
	WarmupFrames   int           // frames to discard after opening the device
}

type RecognizerConfig struct {
	ServiceURL     string  // face analysis service endpoint (detect + encode)
	MatchThreshold float64 // max cosine distance for an authorized match; at or above means unknown
}

type MonitorConfig struct {
	TickInterval     time.Duration // nominal delay between checks
	DebounceTicks    int           // consecutive consistent observations required for a state change
	FailureThreshold int           // consecutive tick failures before backoff kicks in
	MaxBackoff       time.Duration // cap on the degraded tick interval
	StartupGrace     time.Duration // window to get a first frame before assuming Away
	PhoneMAC         string        // optional bluetooth second factor; empty disables
}

type ActionConfig struct {
	LockCooldown  time.Duration // minimum interval between lock actions for the same state
	AlertCooldown time.Duration // minimum interval between webhook alerts
	WebhookURL    string        // optional alert sink
}

type DatabaseConfig struct {
	PostgresURL  string // PostgreSQL connection URL for the audit store
	MariaDBDSN   string // MariaDB DSN, alternative audit store backend
	AuditFile    string // JSONL fallback when no database is configured
	MaxOpenConns int
	MaxIdleConns int
}

type WebConfig struct {
	Listen string // host:port for the status API; empty disables
}

// envInt reads an environment variable and parses it as an integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable and parses it as a positive duration.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func defaultEnrollDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".face_enroll"
	}
	return filepath.Join(home, ".face_enroll")
}

func Load() *Config {
	enrollDir := os.Getenv("GUARD_ENROLL_DIR")
	if enrollDir == "" {
		enrollDir = defaultEnrollDir()
	}

	return &Config{
		Enrollment: EnrollmentConfig{
			Dir: enrollDir,
		},
		Camera: CameraConfig{
			Device:         envInt("GUARD_VIDEO_DEVICE", -1),
			SnapshotURL:    os.Getenv("GUARD_SNAPSHOT_URL"),
			Width:          envInt("GUARD_FRAME_WIDTH", 640),
			Height:         envInt("GUARD_FRAME_HEIGHT", 480),
			AcquireTimeout: envDuration("GUARD_ACQUIRE_TIMEOUT", 2*time.Second),
			WarmupFrames:   envInt("GUARD_WARMUP_FRAMES", 8),
		},
		Recognizer: RecognizerConfig{
			ServiceURL:     os.Getenv("FACE_SERVICE_URL"),
			MatchThreshold: envFloat("GUARD_MATCH_THRESHOLD", 0.6),
		},
		Monitor: MonitorConfig{
			TickInterval:     envDuration("GUARD_TICK_INTERVAL", 350*time.Millisecond),
			DebounceTicks:    envInt("GUARD_DEBOUNCE_TICKS", 8),
			FailureThreshold: envInt("GUARD_FAILURE_THRESHOLD", 3),
			MaxBackoff:       envDuration("GUARD_MAX_BACKOFF", 30*time.Second),
			StartupGrace:     envDuration("GUARD_STARTUP_GRACE", 5*time.Second),
			PhoneMAC:         os.Getenv("GUARD_PHONE_MAC"),
		},
		Actions: ActionConfig{
			LockCooldown:  envDuration("GUARD_LOCK_COOLDOWN", 4*time.Second),
			AlertCooldown: envDuration("GUARD_ALERT_COOLDOWN", 30*time.Second),
			WebhookURL:    os.Getenv("GUARD_WEBHOOK_URL"),
		},
		Database: DatabaseConfig{
			PostgresURL:  os.Getenv("DATABASE_URL"),
			MariaDBDSN:   os.Getenv("MARIADB_DSN"),
			AuditFile:    os.Getenv("GUARD_AUDIT_FILE"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 5),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 2),
		},
		Web: WebConfig{
			Listen: os.Getenv("GUARD_LISTEN"),
		},
		LogFile: os.Getenv("GUARD_LOG_FILE"),
	}
}
