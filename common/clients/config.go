package clients

import (
	"context"
	"os"
	"strings"
	"time"
)

// ClientConfig holds API client settings loaded from the environment
type ClientConfig struct {
	BaseURL string
	UserID  string
	Token   string
	Timeout time.Duration
}

// LoadClientConfig reads CONNECTED_URL, CONNECTED_USER, CONNECTED_TOKEN and CONNECTED_TIMEOUT
func LoadClientConfig() *ClientConfig {
	timeout := 60 * time.Second
	if v := os.Getenv("CONNECTED_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			timeout = d
		}
	}
	return &ClientConfig{
		BaseURL: strings.TrimRight(getEnvOrDefault("CONNECTED_URL", "http://localhost:8080"), "/"),
		UserID:  os.Getenv("CONNECTED_USER"),
		Token:   os.Getenv("CONNECTED_TOKEN"),
		Timeout: timeout,
	}
}

// Context attaches the configured identity to ctx
func (c *ClientConfig) Context(ctx context.Context) context.Context {
	if c.UserID != "" {
		ctx = WithUserID(ctx, c.UserID)
	}
	if c.Token != "" {
		ctx = WithToken(ctx, c.Token)
	}
	return ctx
}

// Helper to get env with default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
