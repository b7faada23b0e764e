// Package camera owns the capture device lifecycle.
//
// A Manager holds at most one live Device at a time. Acquire is
// idempotent, Release is safe to call when nothing is held, and both
// can be driven from the polling loop without extra coordination.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
)

// ErrReleased is returned by a Device after its track has been stopped.
var ErrReleased = errors.New("camera: device released")

// Device is one live video stream handle.
type Device interface {
	// Grab returns the current frame. A nil image with a nil error
	// means the stream is not ready yet; callers skip that tick.
	Grab() (image.Image, error)

	// Close stops the underlying hardware track and releases the
	// handle. Safe to call more than once.
	Close() error
}

// Opener acquires a Device from the platform. The context bounds the
// acquisition attempt only, not the device lifetime.
type Opener func(ctx context.Context) (Device, error)

// Manager owns the capture device. All methods are safe for
// concurrent use.
type Manager struct {
	open   Opener
	logger *slog.Logger

	mu        sync.Mutex
	device    Device
	acquiring bool
	lastErr   error
}

// NewManager creates a lifecycle manager around the given opener.
func NewManager(open Opener, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		open:   open,
		logger: logger.With("component", "camera.manager"),
	}
}

// Acquire requests a capture device. If one is already held (or an
// acquisition is underway) it returns immediately without requesting a
// second device. On failure the error is recorded and returned; a later
// Acquire retries.
func (m *Manager) Acquire(ctx context.Context) error {
	m.mu.Lock()
	if m.device != nil || m.acquiring {
		m.mu.Unlock()
		return nil
	}
	m.acquiring = true
	m.mu.Unlock()

	dev, err := m.open(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquiring = false

	if err != nil {
		m.lastErr = fmt.Errorf("camera acquire failed: %w", err)
		m.logger.Error("camera acquire failed", "error", err)
		return m.lastErr
	}
	if m.device != nil {
		// Lost a race with another acquire; keep the first device.
		dev.Close()
		return nil
	}
	m.device = dev
	m.lastErr = nil
	m.logger.Info("camera acquired")
	return nil
}

// Release stops the underlying hardware track and clears the handle.
// No-op when no device is held.
func (m *Manager) Release() {
	m.mu.Lock()
	dev := m.device
	m.device = nil
	m.mu.Unlock()

	if dev == nil {
		return
	}
	if err := dev.Close(); err != nil {
		m.logger.Warn("camera close failed", "error", err)
	}
	m.logger.Info("camera released")
}

// Active reports whether a device is currently held.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.device != nil
}

// LastError returns the most recent acquisition or capture error, or
// nil. Cleared on a successful acquire.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) current() Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.device
}

func (m *Manager) recordError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
