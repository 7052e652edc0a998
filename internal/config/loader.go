package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/worship-scheduler/internal/logging"
)

// State backends accepted by SCHEDULER_STATE_BACKEND.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config captures environment driven configuration values for the scheduler service.
type Config struct {
	HTTPPort          int
	StateBackend      string
	SQLiteDSN         string
	RedisURL          string
	RemoteDatabaseURL string
	RemoteRate        float64
	Location          *time.Location
	AdhocDefaultTime  string
	ServiceTypesFile  string
	LeaderIDs         []string
	LogLevel          slog.Level
}

// Load parses configuration values from the current process environment.
//
// Optional fields fall back to defaults. Missing and invalid variables are
// collected and reported together.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:         8080,
		StateBackend:     BackendSQLite,
		SQLiteDSN:        "scheduler.db",
		Location:         time.Local,
		AdhocDefaultTime: "10:00",
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("SCHEDULER_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "SCHEDULER_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if backend := strings.ToLower(strings.TrimSpace(os.Getenv("SCHEDULER_STATE_BACKEND"))); backend != "" {
		switch backend {
		case BackendMemory, BackendSQLite, BackendRedis:
			cfg.StateBackend = backend
		default:
			invalid = append(invalid, "SCHEDULER_STATE_BACKEND")
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("SCHEDULER_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("SCHEDULER_REDIS_URL"))
	if cfg.StateBackend == BackendRedis && cfg.RedisURL == "" {
		missing = append(missing, "SCHEDULER_REDIS_URL")
	}

	cfg.RemoteDatabaseURL = strings.TrimSpace(os.Getenv("SCHEDULER_REMOTE_DATABASE_URL"))

	if rateValue := strings.TrimSpace(os.Getenv("SCHEDULER_REMOTE_RATE")); rateValue != "" {
		rate, err := strconv.ParseFloat(rateValue, 64)
		if err != nil || rate < 0 {
			invalid = append(invalid, "SCHEDULER_REMOTE_RATE")
		} else {
			cfg.RemoteRate = rate
		}
	}

	if zone := strings.TrimSpace(os.Getenv("SCHEDULER_TIMEZONE")); zone != "" {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			invalid = append(invalid, "SCHEDULER_TIMEZONE")
		} else {
			cfg.Location = loc
		}
	}

	if adhoc := strings.TrimSpace(os.Getenv("SCHEDULER_ADHOC_DEFAULT_TIME")); adhoc != "" {
		if _, err := time.Parse("15:04", adhoc); err != nil {
			invalid = append(invalid, "SCHEDULER_ADHOC_DEFAULT_TIME")
		} else {
			cfg.AdhocDefaultTime = adhoc
		}
	}

	if level := strings.TrimSpace(os.Getenv("SCHEDULER_LOG_LEVEL")); level != "" {
		parsed, err := logging.ParseLevel(level)
		if err != nil {
			invalid = append(invalid, "SCHEDULER_LOG_LEVEL")
		} else {
			cfg.LogLevel = parsed
		}
	}

	cfg.ServiceTypesFile = strings.TrimSpace(os.Getenv("SCHEDULER_SERVICE_TYPES_FILE"))
	cfg.LeaderIDs = splitList(os.Getenv("SCHEDULER_LEADER_IDS"))

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}
