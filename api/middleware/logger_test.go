package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"success", http.StatusOK, "ok"},
		{"client error", http.StatusNotFound, "missing"},
		{"server error", http.StatusInternalServerError, "boom"},
	}

	mw := RequestLogger(zap.NewNop())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			w := httptest.NewRecorder()
			mw(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if got := w.Body.String(); got != tt.body {
				t.Errorf("body = %q, want %q", got, tt.body)
			}
		})
	}
}

func TestStatusRecorder(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())

	if rec.Status() != 0 {
		t.Errorf("initial status = %d, want 0", rec.Status())
	}

	rec.WriteHeader(http.StatusAccepted)
	if rec.Status() != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rec.Status(), http.StatusAccepted)
	}

	// A second WriteHeader must not override the recorded status.
	rec.WriteHeader(http.StatusBadRequest)
	if rec.Status() != http.StatusAccepted {
		t.Errorf("status after second WriteHeader = %d, want %d", rec.Status(), http.StatusAccepted)
	}
}

func TestStatusRecorderImplicitOK(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())

	if _, err := rec.Write([]byte("payload")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if rec.Status() != http.StatusOK {
		t.Errorf("status = %d, want implicit %d", rec.Status(), http.StatusOK)
	}
}
