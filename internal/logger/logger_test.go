package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name: "valid production config",
			cfg: &Config{
				Level:    "info",
				Encoding: "json",
			},
			wantErr: false,
		},
		{
			name: "valid development config",
			cfg: &Config{
				Level:       "debug",
				Development: true,
				Encoding:    "console",
			},
			wantErr: false,
		},
		{
			name: "empty config uses defaults",
			cfg:  &Config{},
			wantErr: false,
		},
		{
			name: "invalid level",
			cfg: &Config{
				Level: "not-a-level",
			},
			wantErr: true,
		},
		{
			name:    "nil config",
			cfg:     nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger without error")
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	cfg := &Config{}
	if _, err := New(cfg); err != nil {
		t.Fatalf("New() with empty config failed: %v", err)
	}

	if cfg.Level != "info" {
		t.Errorf("default level = %q, want %q", cfg.Level, "info")
	}
	if cfg.Encoding != "json" {
		t.Errorf("default encoding = %q, want %q", cfg.Encoding, "json")
	}
	if len(cfg.OutputPaths) != 1 || cfg.OutputPaths[0] != "stdout" {
		t.Errorf("default output paths = %v, want [stdout]", cfg.OutputPaths)
	}
	if len(cfg.ErrorOutputPaths) != 1 || cfg.ErrorOutputPaths[0] != "stderr" {
		t.Errorf("default error output paths = %v, want [stderr]", cfg.ErrorOutputPaths)
	}
}

func TestNewDevelopment(t *testing.T) {
	logger, err := NewDevelopment()
	if err != nil {
		t.Fatalf("NewDevelopment() failed: %v", err)
	}
	if logger == nil {
		t.Fatal("NewDevelopment() returned nil logger")
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("development logger should enable debug level")
	}
}

// newBufferLogger creates a logger writing JSON entries to a buffer for assertions
func newBufferLogger(level zapcore.Level) (*zap.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "" // deterministic output
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(buf),
		level,
	)
	return zap.New(core), buf
}

func TestLogLevels(t *testing.T) {
	logger, buf := newBufferLogger(zapcore.InfoLevel)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
	_ = logger.Sync()

	output := buf.String()

	if strings.Contains(output, "debug message") {
		t.Error("debug message should be filtered at info level")
	}
	for _, want := range []string{"info message", "warn message", "error message"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestWithComponent(t *testing.T) {
	logger, buf := newBufferLogger(zapcore.InfoLevel)

	componentLogger := WithComponent(logger, "subscription")
	componentLogger.Info("processing block", zap.Uint64("block", 12345))
	_ = logger.Sync()

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}

	if entry["component"] != "subscription" {
		t.Errorf("component field = %v, want %q", entry["component"], "subscription")
	}
	if entry["msg"] != "processing block" {
		t.Errorf("msg field = %v, want %q", entry["msg"], "processing block")
	}
	if entry["block"] != float64(12345) {
		t.Errorf("block field = %v, want 12345", entry["block"])
	}
}
