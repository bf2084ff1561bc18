// Package config provides centralized default values for CursedBoard
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Store Configuration
	RedisURL      string
	StateTTL      time.Duration
	QueueTTL      time.Duration
	QueueMaxSize  int
	PresenceKey   string
	SiteTimezone  string
	AdminSecret   string
	CookieMaxAge  int
	CookieName    string
	FingerprintHeader string

	// WebSocket Configuration
	WSHeartbeatInterval time.Duration
	WSQueuePollTimeout  time.Duration
	WSWriteTimeout      time.Duration
	WSReadLimit         int64

	// Scheduler Cadences
	TriggerSweepInterval time.Duration
	AnomalySweepInterval time.Duration
	CleanupInterval      time.Duration
	NightBurstHour       int
	WitchingEventHour    int

	// Logging
	LogDirectory  string
	LogToFile     bool
	LogJSONFormat bool
	LogLevel      string
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Store Configuration
	RedisURL = getEnvString("REDIS_URL", "")
	StateTTL = time.Duration(getEnvInt("RITUAL_STATE_TTL_HOURS", 24)) * time.Hour
	QueueTTL = time.Duration(getEnvInt("ANOMALY_QUEUE_TTL_MINUTES", 60)) * time.Minute
	QueueMaxSize = getEnvInt("ANOMALY_QUEUE_MAX_SIZE", 100)
	PresenceKey = getEnvString("PRESENCE_KEY", "ritual_connections")
	SiteTimezone = getEnvString("SITE_TIMEZONE", "UTC")
	AdminSecret = getEnvString("ADMIN_JWT_SECRET", "")
	CookieMaxAge = getEnvInt("RITUAL_COOKIE_MAX_AGE", 31536000)
	CookieName = getEnvString("RITUAL_COOKIE_NAME", "ritual_id")
	FingerprintHeader = getEnvString("FINGERPRINT_HEADER", "X-Fingerprint")

	// WebSocket Configuration
	WSHeartbeatInterval = getEnvDuration("WS_HEARTBEAT_INTERVAL", 30*time.Second)
	WSQueuePollTimeout = getEnvDuration("WS_QUEUE_POLL_TIMEOUT", 25*time.Second)
	WSWriteTimeout = getEnvDuration("WS_WRITE_TIMEOUT", 10*time.Second)
	WSReadLimit = int64(getEnvInt("WS_READ_LIMIT_BYTES", 4096))

	// Scheduler Cadences
	TriggerSweepInterval = getEnvDuration("TRIGGER_SWEEP_INTERVAL", 1*time.Minute)
	AnomalySweepInterval = getEnvDuration("ANOMALY_SWEEP_INTERVAL", 5*time.Minute)
	CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 1*time.Hour)
	NightBurstHour = getEnvInt("NIGHT_BURST_HOUR", 0)
	WitchingEventHour = getEnvInt("WITCHING_EVENT_HOUR", 3)

	// Logging
	LogToFile = getEnvBool("LOG_TO_FILE", false)
	LogJSONFormat = getEnvBool("LOG_JSON_FORMAT", true)
	LogLevel = getEnvString("LOG_LEVEL", "info")
	LogDirectory = getEnvString("LOG_DIRECTORY", "logs")
}
