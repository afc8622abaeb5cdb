/*
Package configs is responsible for loading and parsing the application's configuration settings.

It primarily configures server parameters by reading operating system environment variables,
including the running environment, the chat and status ports, session limits, frame limits,
accept-path rate limiting, and the duplicate-nickname policy.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig contains all configuration parameters required for the application to run.
// All configuration values are loaded from environment variables.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int
	StatusPort  int

	// Session Settings
	MaxSessions   int
	MaxFrameBytes int
	IdleTimeout   time.Duration

	// Admission Control Settings
	AcceptRate  float64
	AcceptBurst int

	// Registry Settings
	DuplicatePolicy string

	// Status API Settings
	AllowedOrigins []string
}

// LoadConfig reads and parses the application configuration from environment variables.
// It provides default values for each configuration item and performs necessary type conversions and validation.
// It returns a pointer to the AppConfig struct and any error encountered.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	// --- General Server Settings ---
	// Environment
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	// Port (chat listener)
	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "6543"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT environment variable: %w", err)
	}
	cfg.Port = port

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	// StatusPort (read-only HTTP status API)
	statusPortStr := os.Getenv("STATUS_PORT")
	if statusPortStr == "" {
		statusPortStr = "8080"
	}
	statusPort, err := strconv.Atoi(statusPortStr)
	if err != nil {
		return nil, fmt.Errorf("invalid STATUS_PORT environment variable: %w", err)
	}
	cfg.StatusPort = statusPort

	if cfg.StatusPort == cfg.Port {
		return nil, fmt.Errorf("STATUS_PORT must differ from PORT (both are %d)", cfg.Port)
	}

	// --- Session Settings ---
	// MaxSessions
	maxSessionsStr := os.Getenv("MAX_SESSIONS")
	if maxSessionsStr == "" {
		maxSessionsStr = "256"
	}
	maxSessions, err := strconv.Atoi(maxSessionsStr)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_SESSIONS environment variable: %w", err)
	}
	if maxSessions < 1 {
		return nil, fmt.Errorf("MAX_SESSIONS must be at least 1, got %d", maxSessions)
	}
	cfg.MaxSessions = maxSessions

	// MaxFrameBytes
	maxFrameStr := os.Getenv("MAX_FRAME_BYTES")
	if maxFrameStr == "" {
		maxFrameStr = "65536"
	}
	maxFrame, err := strconv.Atoi(maxFrameStr)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_FRAME_BYTES environment variable: %w", err)
	}
	if maxFrame < 1024 {
		return nil, fmt.Errorf("MAX_FRAME_BYTES must be at least 1024, got %d", maxFrame)
	}
	cfg.MaxFrameBytes = maxFrame

	// IdleTimeout (e.g. "5m"; "0" disables idle disconnection)
	idleStr := os.Getenv("IDLE_TIMEOUT")
	if idleStr == "" {
		idleStr = "0"
	}
	if idleStr == "0" {
		cfg.IdleTimeout = 0
	} else {
		idle, err := time.ParseDuration(idleStr)
		if err != nil {
			return nil, fmt.Errorf("invalid IDLE_TIMEOUT environment variable: %w", err)
		}
		if idle < 0 {
			return nil, fmt.Errorf("IDLE_TIMEOUT must not be negative, got %s", idle)
		}
		cfg.IdleTimeout = idle
	}

	// --- Admission Control Settings ---
	// AcceptRate (new connections per second per IP)
	rateStr := os.Getenv("ACCEPT_RATE")
	if rateStr == "" {
		rateStr = "5"
	}
	acceptRate, err := strconv.ParseFloat(rateStr, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ACCEPT_RATE environment variable: %w", err)
	}
	if acceptRate <= 0 {
		return nil, fmt.Errorf("ACCEPT_RATE must be positive, got %g", acceptRate)
	}
	cfg.AcceptRate = acceptRate

	// AcceptBurst
	burstStr := os.Getenv("ACCEPT_BURST")
	if burstStr == "" {
		burstStr = "10"
	}
	acceptBurst, err := strconv.Atoi(burstStr)
	if err != nil {
		return nil, fmt.Errorf("invalid ACCEPT_BURST environment variable: %w", err)
	}
	if acceptBurst < 1 {
		return nil, fmt.Errorf("ACCEPT_BURST must be at least 1, got %d", acceptBurst)
	}
	cfg.AcceptBurst = acceptBurst

	// --- Registry Settings ---
	// DuplicatePolicy ("reject" or "allow"; validated by the registry)
	cfg.DuplicatePolicy = os.Getenv("DUPLICATE_POLICY")
	if cfg.DuplicatePolicy == "" {
		cfg.DuplicatePolicy = "reject"
	}

	// --- Status API Settings ---
	// AllowedOrigins
	originsStr := os.Getenv("ALLOWED_ORIGINS")
	if originsStr != "" {
		origins := strings.Split(originsStr, ",")
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	} else {
		cfg.AllowedOrigins = []string{}
	}

	return cfg, nil
}
