package camera

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// OpenCVOpener returns an Opener backed by gocv for the given device
// index (0 = first webcam).
func OpenCVOpener(deviceIndex int) Opener {
	return func(ctx context.Context) (Device, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cap, err := gocv.OpenVideoCapture(deviceIndex)
		if err != nil {
			return nil, fmt.Errorf("open video device %d: %w", deviceIndex, err)
		}
		if !cap.IsOpened() {
			cap.Close()
			return nil, fmt.Errorf("video device %d did not open", deviceIndex)
		}

		return &opencvDevice{cap: cap, mat: gocv.NewMat()}, nil
	}
}

// opencvDevice wraps a gocv VideoCapture. The Mat is reused across
// grabs to avoid per-frame allocation.
type opencvDevice struct {
	mu     sync.Mutex
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

func (d *opencvDevice) Grab() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrReleased
	}
	if ok := d.cap.Read(&d.mat); !ok || d.mat.Empty() {
		// Stream not producing frames yet.
		return nil, nil
	}

	img, err := d.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

func (d *opencvDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.mat.Close()
	return d.cap.Close()
}

var _ Device = (*opencvDevice)(nil)
