package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// RBACModel is the casbin model used for operator-only routes.
//
//go:embed restful_rbac_model.conf
var RBACModel string

var loadOnce sync.Once

// Config returns the value of an environment key. The .env file, when present,
// is loaded on first use and never overrides variables already set.
func Config(key string) string {
	loadOnce.Do(func() {
		_ = godotenv.Load()
	})
	return os.Getenv(key)
}

func String(key string, def string) string {
	if value := strings.TrimSpace(Config(key)); value != "" {
		return value
	}
	return def
}

func Int(key string, def int) int {
	if value, err := strconv.Atoi(strings.TrimSpace(Config(key))); err == nil {
		return value
	}
	return def
}

// Duration accepts Go duration strings ("2s", "1m30s").
func Duration(key string, def time.Duration) time.Duration {
	if value, err := time.ParseDuration(strings.TrimSpace(Config(key))); err == nil {
		return value
	}
	return def
}

func Bool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(Config(key))) {
	case "1", "true", "yes", "enable", "enabled":
		return true
	case "0", "false", "no", "disable", "disabled":
		return false
	}
	return def
}
