package main

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// demoConfig holds the environment-derived settings for the demo server.
// It is scoped to cmd/server alone: the oidcrs library itself takes a
// constructed Options struct per route and never reads the environment.
type demoConfig struct {
	port          int
	baseURI       string
	trustedIssuer string
	corsOrigins   []string
}

// loadConfig reads the demo server's environment variables, with the same
// fixed defaults for PORT and CORS_ALLOWED_ORIGINS as a typical chi-based
// API server.
func loadConfig() (*demoConfig, error) {
	cfg := &demoConfig{
		port:        3000,
		corsOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, errors.New("config: invalid PORT value " + portStr)
		}
		cfg.port = port
	}

	cfg.baseURI = os.Getenv("OIDCRS_BASE_URI")
	if cfg.baseURI == "" {
		cfg.baseURI = "http://localhost:3000"
	}

	cfg.trustedIssuer = os.Getenv("OIDCRS_TRUSTED_ISSUER")
	if cfg.trustedIssuer == "" {
		return nil, errors.New("config: OIDCRS_TRUSTED_ISSUER is required")
	}

	if originsEnv := os.Getenv("CORS_ALLOWED_ORIGINS"); originsEnv != "" {
		origins := strings.Split(originsEnv, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.corsOrigins = origins
	}

	return cfg, nil
}
