package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewServer(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "valid default config",
			config:  DefaultConfig(),
			wantErr: false,
		},
		{
			name: "invalid port",
			config: &Config{
				Host:            "localhost",
				Port:            0,
				ReadTimeout:     10 * time.Second,
				WriteTimeout:    10 * time.Second,
				IdleTimeout:     60 * time.Second,
				ShutdownTimeout: 30 * time.Second,
			},
			wantErr: true,
		},
		{
			name: "missing host",
			config: &Config{
				Port:            8080,
				ReadTimeout:     10 * time.Second,
				WriteTimeout:    10 * time.Second,
				IdleTimeout:     60 * time.Second,
				ShutdownTimeout: 30 * time.Second,
			},
			wantErr: true,
		},
	}

	logger := zap.NewNop()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewServer(tt.config, logger, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewServer() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && server == nil {
				t.Error("NewServer() returned nil server")
			}
		})
	}
}

func TestServerHealthEndpoint(t *testing.T) {
	config := DefaultConfig()
	logger := zap.NewNop()

	server, err := NewServer(config, logger, func() Status {
		return Status{Checkpoint: 1234, Head: 1240}
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("health endpoint returned wrong status code: got %v want %v",
			w.Code, http.StatusOK)
	}

	contentType := w.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("health endpoint returned wrong content type: got %v want %v",
			contentType, "application/json")
	}

	var response HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if response.Status != "ok" {
		t.Errorf("health status = %q, want %q", response.Status, "ok")
	}
	if response.Blocks == nil || response.Blocks.Checkpoint != 1234 || response.Blocks.Head != 1240 {
		t.Errorf("health blocks = %+v, want checkpoint 1234 head 1240", response.Blocks)
	}
}

func TestServerReadinessEndpoint(t *testing.T) {
	config := DefaultConfig()
	logger := zap.NewNop()

	server, err := NewServer(config, logger, nil)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness before ready = %v, want %v", w.Code, http.StatusServiceUnavailable)
	}

	server.SetReady(true)

	w = httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("readiness after ready = %v, want %v", w.Code, http.StatusOK)
	}
}

func TestServerVersionEndpoint(t *testing.T) {
	config := DefaultConfig()
	logger := zap.NewNop()

	server, err := NewServer(config, logger, nil)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	w := httptest.NewRecorder()

	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("version endpoint returned wrong status code: got %v want %v",
			w.Code, http.StatusOK)
	}
}

func TestServerMetricsEndpoint(t *testing.T) {
	config := DefaultConfig()
	logger := zap.NewNop()

	server, err := NewServer(config, logger, nil)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("metrics endpoint returned wrong status code: got %v want %v",
			w.Code, http.StatusOK)
	}
}
