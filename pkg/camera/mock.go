package camera

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
)

// MockDevice is a synthetic capture device for tests. It serves flat
// gray frames of a fixed size and records whether its track was
// stopped.
type MockDevice struct {
	mu       sync.Mutex
	width    int
	height   int
	notReady bool
	grabErr  error
	stopped  bool
	grabs    int
}

// NewMockDevice creates a mock device producing width x height frames.
func NewMockDevice(width, height int) *MockDevice {
	return &MockDevice{width: width, height: height}
}

// SetNotReady makes Grab report "no frame yet" without an error.
func (d *MockDevice) SetNotReady(v bool) {
	d.mu.Lock()
	d.notReady = v
	d.mu.Unlock()
}

// SetGrabError makes every Grab fail with err.
func (d *MockDevice) SetGrabError(err error) {
	d.mu.Lock()
	d.grabErr = err
	d.mu.Unlock()
}

// Grab implements Device.
func (d *MockDevice) Grab() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return nil, ErrReleased
	}
	if d.grabErr != nil {
		return nil, d.grabErr
	}
	if d.notReady {
		return nil, nil
	}

	d.grabs++
	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.Black)
	return img, nil
}

// Close implements Device.
func (d *MockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	return nil
}

// Stopped reports whether the track has been stopped.
func (d *MockDevice) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// Grabs returns how many frames were served.
func (d *MockDevice) Grabs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.grabs
}

// MockOpener returns an Opener that hands out the given device and
// counts how many times it was invoked.
func MockOpener(dev Device, calls *atomic.Int32) Opener {
	return func(ctx context.Context) (Device, error) {
		if calls != nil {
			calls.Add(1)
		}
		return dev, nil
	}
}

// FailingOpener returns an Opener that always fails with err.
func FailingOpener(err error) Opener {
	return func(ctx context.Context) (Device, error) {
		return nil, err
	}
}

var _ Device = (*MockDevice)(nil)
