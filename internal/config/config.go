package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
	Mode      string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level       string
	Format      string
	SessionKeep int
}

// SchedulerConfig holds the due-job poller cadence.
type SchedulerConfig struct {
	AutoStart bool
	Warmup    time.Duration
	Interval  time.Duration
}

// PlaybackConfig holds element resolution and input backend settings.
type PlaybackConfig struct {
	Backend        string
	DesktopFixture string
	ScreenshotDir  string
	ElementTimeout time.Duration
	ElementPoll    time.Duration
	MaxStepDelay   time.Duration
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// NotificationConfig holds all notification settings.
type NotificationConfig struct {
	Bark BarkConfig
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Scheduler    SchedulerConfig
	Playback     PlaybackConfig
	Notification NotificationConfig

	StateDir      string
	UseUTC        bool
	ShutdownGrace time.Duration

	// Flat fields mirrored from the nested ones.
	Addr      string
	Mode      string
	LogLevel  string
	AuthToken string
}

const (
	BackendDryRun  = "dryrun"
	BackendRobotgo = "robotgo"
)

const (
	envPrefix            = "CLICKREPLAY_"
	defaultAddr          = "127.0.0.1:7171"
	defaultMode          = "http"
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
	defaultSessionKeep   = 50
	defaultShutdownGrace = 5 * time.Second
	defaultWarmup        = 5 * time.Second
	defaultInterval      = 30 * time.Second
	defaultElementWait   = 5 * time.Second
	defaultElementPoll   = 200 * time.Millisecond
	defaultMaxStepDelay  = 30 * time.Second
)

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(envPrefix + key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt returns the environment variable as int or default
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(envPrefix + key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool returns the environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(envPrefix + key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(envPrefix + key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func loadEnvFiles() {
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "clickreplay", ".env"))
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f) // optional
	}
}

// ClientConfig holds connection defaults for clickreplayctl.
type ClientConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// LoadClient reads client defaults from the same environment and .env files
// as the daemon, so a local daemon is reachable without flags.
func LoadClient() ClientConfig {
	loadEnvFiles()
	url := getEnvString("URL", "")
	if url == "" {
		url = "http://" + getEnvString("ADDR", defaultAddr)
	}
	return ClientConfig{
		URL:     strings.TrimRight(url, "/"),
		Token:   getEnvString("AUTH_TOKEN", ""),
		Timeout: getEnvDuration("CLIENT_TIMEOUT", 10*time.Second),
	}
}

// Parse parses command line arguments and environment variables into Config.
// Priority: CLI flags > Environment variables > .env file > defaults
func Parse(args []string) (*Config, error) {
	loadEnvFiles()

	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnvString("ADDR", defaultAddr),
			AuthToken: getEnvString("AUTH_TOKEN", ""),
			Mode:      getEnvString("MODE", defaultMode),
		},
		Log: LogConfig{
			Level:       getEnvString("LOG_LEVEL", defaultLogLevel),
			Format:      getEnvString("LOG_FORMAT", defaultLogFormat),
			SessionKeep: getEnvInt("SESSION_KEEP", defaultSessionKeep),
		},
		Scheduler: SchedulerConfig{
			AutoStart: getEnvBool("SCHEDULER_AUTOSTART", true),
			Warmup:    getEnvDuration("SCHEDULER_WARMUP", defaultWarmup),
			Interval:  getEnvDuration("SCHEDULER_INTERVAL", defaultInterval),
		},
		Playback: PlaybackConfig{
			Backend:        getEnvString("BACKEND", BackendDryRun),
			DesktopFixture: getEnvString("DESKTOP_FIXTURE", ""),
			ScreenshotDir:  getEnvString("SCREENSHOT_DIR", ""),
			ElementTimeout: getEnvDuration("ELEMENT_TIMEOUT", defaultElementWait),
			ElementPoll:    getEnvDuration("ELEMENT_POLL", defaultElementPoll),
			MaxStepDelay:   getEnvDuration("MAX_STEP_DELAY", defaultMaxStepDelay),
		},
		Notification: NotificationConfig{
			Bark: BarkConfig{
				URL:     getEnvString("BARK_URL", ""),
				Enabled: getEnvBool("BARK_ENABLED", false),
			},
		},
		StateDir:      getEnvString("STATE_DIR", ""),
		UseUTC:        getEnvBool("USE_UTC", false),
		ShutdownGrace: getEnvDuration("SHUTDOWN_GRACE", defaultShutdownGrace),
	}

	fs := flag.NewFlagSet("clickreplayd", flag.ContinueOnError)
	var addr, mode, logLevel, logFormat, stateDir, backend, fixture string
	var sessionKeep int
	var useUTC, noScheduler bool
	var shutdownGrace time.Duration

	fs.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	fs.StringVar(&mode, "mode", "", "Serving mode: http, mcp or both")
	fs.StringVar(&stateDir, "state-dir", "", "Directory to store the database and screenshots")
	fs.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&logFormat, "log-format", "", "Log format (text, json)")
	fs.StringVar(&backend, "backend", "", "Playback backend (dryrun, robotgo)")
	fs.StringVar(&fixture, "desktop-fixture", "", "JSON desktop tree for the dry-run backend")
	fs.BoolVar(&useUTC, "use-utc", false, "Use UTC for daily schedules instead of system local time")
	fs.BoolVar(&noScheduler, "no-scheduler", false, "Do not start the job scheduler on boot")
	fs.IntVar(&sessionKeep, "session-keep", 0, "Number of recent sessions to retain per job")
	fs.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if mode != "" {
		cfg.Server.Mode = mode
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if sessionKeep > 0 {
		cfg.Log.SessionKeep = sessionKeep
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if backend != "" {
		cfg.Playback.Backend = backend
	}
	if fixture != "" {
		cfg.Playback.DesktopFixture = fixture
	}
	// For bool flags, check if explicitly set via Visit
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "use-utc":
			cfg.UseUTC = useUTC
		case "no-scheduler":
			cfg.Scheduler.AutoStart = !noScheduler
		case "shutdown-grace":
			cfg.ShutdownGrace = shutdownGrace
		}
	})

	cfg.Addr = cfg.Server.Addr
	cfg.Mode = cfg.Server.Mode
	cfg.AuthToken = cfg.Server.AuthToken
	cfg.LogLevel = cfg.Log.Level

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}
	if cfg.Playback.ScreenshotDir == "" {
		cfg.Playback.ScreenshotDir = filepath.Join(cfg.StateDir, "screenshots")
	}
	if cfg.Log.SessionKeep < 1 {
		cfg.Log.SessionKeep = defaultSessionKeep
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case "http", "mcp", "both":
	default:
		return fmt.Errorf("invalid mode %q (want http, mcp or both)", c.Mode)
	}
	switch c.Playback.Backend {
	case BackendDryRun, BackendRobotgo:
	default:
		return fmt.Errorf("invalid backend %q (want %s or %s)", c.Playback.Backend, BackendDryRun, BackendRobotgo)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", c.Scheduler.Interval)
	}
	if c.Playback.ElementPoll <= 0 || c.Playback.ElementTimeout <= 0 {
		return fmt.Errorf("element timeout and poll interval must be positive")
	}
	return nil
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "clickreplay")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
