package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestRecoveryPassesThroughHealthyHandler(t *testing.T) {
	mw := Recovery(zap.NewNop())

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	w := httptest.NewRecorder()
	mw(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got != "ok" {
		t.Errorf("body = %q, want %q", got, "ok")
	}
}

func TestRecoveryConvertsPanicTo500(t *testing.T) {
	panics := map[string]http.HandlerFunc{
		"string panic": func(w http.ResponseWriter, r *http.Request) {
			panic("something broke")
		},
		"abort handler": func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		},
	}

	mw := Recovery(zap.NewNop())

	for name, handler := range panics {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mw(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			if w.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
			}
		})
	}
}

func TestRecoveryWithWriter(t *testing.T) {
	writer := func(w http.ResponseWriter, r *http.Request, err interface{}) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"unavailable"}`))
	}

	mw := RecoveryWithWriter(zap.NewNop(), writer)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("something broke")
	})

	w := httptest.NewRecorder()
	mw(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if got := w.Body.String(); got != `{"error":"unavailable"}` {
		t.Errorf("body = %q", got)
	}
}
