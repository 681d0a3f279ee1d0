package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "IBCSIM_LOG_LEVEL"
	EnvLogTimestamp = "IBCSIM_LOG_TIMESTAMP"
	EnvLogNoColor   = "IBCSIM_LOG_NOCOLOR"
	EnvLogDir       = "IBCSIM_LOG_DIR"
)

// TimeLayout matches the timestamp layout of the persisted record files.
const TimeLayout = "2006-01-02 15:04:05"

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config is the resolved logger setup for one process.
type Config struct {
	App       string
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	// Dir, when set, receives a copy of all output in <Dir>/<App>_transfer_log.txt.
	Dir string
}

var (
	configureOnce sync.Once
	logFile       *os.File
)

func ConfigureRuntime(app string) {
	Configure(ProfileRuntime, app)
}

func ConfigureTests() {
	Configure(ProfileTest, "test")
}

func Configure(profile Profile, app string) {
	configureOnce.Do(func() {
		cfg := DefaultConfig(profile, app)
		ApplyEnvOverrides(&cfg, os.Getenv)
		logger, f, err := Build(cfg, os.Stdout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		}
		logFile = f
		zerolog.SetGlobalLevel(cfg.Level)
		log.Logger = logger
	})
}

// Close flushes and closes the per-node log file if one was opened.
func Close() {
	if logFile != nil {
		_ = logFile.Sync()
		_ = logFile.Close()
	}
}

func DefaultConfig(profile Profile, app string) Config {
	cfg := Config{App: app}
	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
		cfg.Timestamp = false
	default:
		cfg.Level = zerolog.InfoLevel
		cfg.Timestamp = true
	}
	return cfg
}

// Build assembles a console logger on out, teeing into a log file under cfg.Dir when set.
// The file is returned so the caller can close it; a file error degrades to console-only output.
func Build(cfg Config, out io.Writer) (zerolog.Logger, *os.File, error) {
	console := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	var (
		w   io.Writer = console
		f   *os.File
		err error
	)
	if strings.TrimSpace(cfg.Dir) != "" {
		f, err = openLogFile(cfg.Dir, cfg.App)
		if err == nil {
			fileWriter := zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: TimeLayout}
			w = zerolog.MultiLevelWriter(console, fileWriter)
		}
	}
	ctx := zerolog.New(w).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.App != "" {
		ctx = ctx.Str("app", cfg.App)
	}
	return ctx.Logger(), f, err
}

func openLogFile(dir, app string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	name := app
	if name == "" {
		name = "ibcsim"
	}
	path := filepath.Join(dir, name+"_transfer_log.txt")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, nil
}

func ApplyEnvOverrides(cfg *Config, getenv func(string) string) {
	if lvl, ok := parseLevel(getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if dir := strings.TrimSpace(getenv(EnvLogDir)); dir != "" {
		cfg.Dir = dir
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
