package utils

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestInitLogger_Production(t *testing.T) {
	// Should not panic
	InitLogger("info")
	if Log == nil {
		t.Error("Log was not initialized")
	}
}

func TestInitLogger_Level(t *testing.T) {
	InitLogger("warn")
	if Log.Core().Enabled(zapcore.InfoLevel) {
		t.Error("Expected info level to be disabled at warn")
	}
	if !Log.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("Expected error level to be enabled at warn")
	}

	// Unknown levels fall back to the production default
	InitLogger("loud")
	if !Log.Core().Enabled(zapcore.InfoLevel) {
		t.Error("Expected info level for unknown level string")
	}
}

func TestField(t *testing.T) {
	f := Field("key", "value")
	if f.Key != "key" {
		t.Errorf("Expected key, got %s", f.Key)
	}
}
