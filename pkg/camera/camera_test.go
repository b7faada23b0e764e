package camera

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
)

func TestAcquireIdempotent(t *testing.T) {
	dev := NewMockDevice(640, 480)
	var calls atomic.Int32
	m := NewManager(MockOpener(dev, &calls), nil)

	ctx := context.Background()
	if err := m.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := m.Acquire(ctx); err != nil {
		t.Fatalf("second acquire: %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("expected exactly one device request, got %d", got)
	}
	if !m.Active() {
		t.Error("expected manager active after acquire")
	}
}

func TestReleaseStopsTrack(t *testing.T) {
	dev := NewMockDevice(640, 480)
	m := NewManager(MockOpener(dev, nil), nil)

	if err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	m.Release()

	if m.Active() {
		t.Error("expected inactive after release")
	}
	if !dev.Stopped() {
		t.Error("expected underlying track stopped after release")
	}
}

func TestReleaseWithoutDeviceIsNoop(t *testing.T) {
	m := NewManager(MockOpener(NewMockDevice(1, 1), nil), nil)
	m.Release() // must not panic
	if m.Active() {
		t.Error("expected inactive")
	}
}

func TestAcquireFailureRecorded(t *testing.T) {
	cause := errors.New("NotAllowedError: permission denied")
	m := NewManager(FailingOpener(cause), nil)

	err := m.Acquire(context.Background())
	if err == nil {
		t.Fatal("expected acquire error")
	}
	if m.Active() {
		t.Error("expected inactive after failed acquire")
	}
	if last := m.LastError(); last == nil || !strings.Contains(last.Error(), "permission denied") {
		t.Errorf("expected recorded error with platform detail, got %v", last)
	}
}

func TestAcquireRetriesAfterFailure(t *testing.T) {
	dev := NewMockDevice(640, 480)
	failures := 1
	open := func(ctx context.Context) (Device, error) {
		if failures > 0 {
			failures--
			return nil, errors.New("device busy")
		}
		return dev, nil
	}
	m := NewManager(open, nil)

	if err := m.Acquire(context.Background()); err == nil {
		t.Fatal("expected first acquire to fail")
	}
	if err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
	if !m.Active() {
		t.Error("expected active after successful retry")
	}
	if m.LastError() != nil {
		t.Errorf("expected error cleared on success, got %v", m.LastError())
	}
}

func TestSnapshotWithoutDevice(t *testing.T) {
	m := NewManager(MockOpener(NewMockDevice(1, 1), nil), nil)
	if got := m.Snapshot(); got != "" {
		t.Errorf("expected empty snapshot without device, got %d bytes", len(got))
	}
}

func TestSnapshotNotReady(t *testing.T) {
	dev := NewMockDevice(640, 480)
	dev.SetNotReady(true)
	m := NewManager(MockOpener(dev, nil), nil)
	m.Acquire(context.Background())

	if got := m.Snapshot(); got != "" {
		t.Errorf("expected empty snapshot from not-ready device, got %d bytes", len(got))
	}

	dev.SetNotReady(false)
	if got := m.Snapshot(); got == "" {
		t.Error("expected snapshot once device is ready")
	}
}
