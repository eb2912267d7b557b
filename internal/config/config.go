package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr string
	Env  string // "dev" switches zap to development mode

	// Executor limits.
	ExecWorkers    int
	MaxCodeBytes   int
	MaxInputBytes  int
	MaxOutputBytes int64
	CompileTimeout time.Duration

	// Session-level bound on a whole evaluation (all test cases plus
	// judge overhead).
	EvalTimeout time.Duration

	// Registry retention of finished/abandoned battles.
	Retention     time.Duration
	SweepInterval time.Duration

	// Optional postgres DSN for the battle outcome archive. Empty
	// disables archiving.
	DatabaseURL string
}

// Load reads .env if present, then the environment. Missing keys fall back
// to defaults; malformed values are errors, not silent fallbacks.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:        getenv("ADDR", ":8080"),
		Env:         getenv("APP_ENV", "production"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}

	var err error
	maxOutput, err := getenvInt("MAX_OUTPUT_BYTES", 1<<20)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxOutputBytes = int64(maxOutput)
	if cfg.ExecWorkers, err = getenvInt("EXEC_WORKERS", 4); err != nil {
		return Config{}, err
	}
	if cfg.MaxCodeBytes, err = getenvInt("MAX_CODE_BYTES", 64<<10); err != nil {
		return Config{}, err
	}
	if cfg.MaxInputBytes, err = getenvInt("MAX_INPUT_BYTES", 64<<10); err != nil {
		return Config{}, err
	}
	if cfg.CompileTimeout, err = getenvDuration("COMPILE_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.EvalTimeout, err = getenvDuration("EVAL_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Retention, err = getenvDuration("BATTLE_RETENTION", 10*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = getenvDuration("BATTLE_SWEEP_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
