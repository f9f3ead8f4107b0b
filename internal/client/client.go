package client

import (
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/wolfeidau/planpoker/internal/api"
)

// Config holds common client configuration
type Config struct {
	ServerURL string
	// Timeout applies to whole calls, zero disables it. Streams need zero.
	Timeout time.Duration
	// Token is sent as a bearer token when set.
	Token string
	// UserID, UserName are sent as identity headers for servers running
	// without authentication.
	UserID   string
	UserName string
	Debug    bool
}

// NewClient creates a planning service client with the given configuration
func NewClient(config Config, opts ...connect.ClientOption) *api.Client {
	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &authTransport{
			base:     http.DefaultTransport,
			token:    config.Token,
			userID:   config.UserID,
			userName: config.UserName,
		},
	}

	return api.NewClient(httpClient, config.ServerURL, opts...)
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:8080",
		Timeout:   30 * time.Second,
		Debug:     false,
	}
}
