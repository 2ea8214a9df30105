package serial

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyACM0")
	if cfg.Device != "/dev/ttyACM0" || cfg.Baud != 250000 {
		t.Errorf("Unexpected default config %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultConfig("").Validate(); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Expected ErrNoDevice, got %v", err)
	}
	cfg := DefaultConfig("COM3")
	cfg.Baud = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected an error for zero baud")
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	if _, err := Open(nil); err == nil {
		t.Error("Expected an error for a nil config")
	}
	if _, err := Open(DefaultConfig("")); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Expected ErrNoDevice, got %v", err)
	}
	if _, err := Open(DefaultConfig("/nonexistent/tty-motion-test")); err == nil {
		t.Error("Expected an error opening a missing device")
	}
}

func TestOpenRetryGivesUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := OpenRetry(ctx, DefaultConfig("/nonexistent/tty-motion-test"), 5*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
	if _, err := OpenRetry(context.Background(), DefaultConfig(""), time.Millisecond); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Expected ErrNoDevice without retrying, got %v", err)
	}
}
