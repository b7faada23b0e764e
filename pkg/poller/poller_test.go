package poller

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amitthk/local-llm-camera-app/pkg/camera"
	"github.com/amitthk/local-llm-camera-app/pkg/inference"
)

// fakeDescriber is a controllable inference backend.
type fakeDescriber struct {
	mu      sync.Mutex
	calls   int
	reply   string
	err     error
	started chan struct{} // receives when a Describe begins
	release chan struct{} // when non-nil, Describe blocks until closed
}

func (f *fakeDescriber) Describe(ctx context.Context, req *inference.Request) (*inference.Response, error) {
	f.mu.Lock()
	f.calls++
	reply, err := f.reply, f.err
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	return &inference.Response{Reply: reply}, nil
}

func (f *fakeDescriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// newTestPoller builds a poller over a pre-acquired mock camera.
func newTestPoller(t *testing.T, dev camera.Device, d Describer, opts ...Option) (*Poller, *camera.Manager, chan Status) {
	t.Helper()

	cam := camera.NewManager(camera.MockOpener(dev, nil), nil)
	if err := cam.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ch := make(chan Status, 64)
	base := []Option{
		WithInterval(20 * time.Millisecond),
		WithInstruction("hi"),
		WithOnStatus(func(st Status) {
			select {
			case ch <- st:
			default:
			}
		}),
	}
	p := New(cam, d, append(base, opts...)...)
	t.Cleanup(p.Dispose)
	return p, cam, ch
}

func waitFor(t *testing.T, ch chan Status, pred func(Status) bool) Status {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case st := <-ch:
			if pred(st) {
				return st
			}
		case <-deadline:
			t.Fatal("timed out waiting for status")
		}
	}
}

func TestTickPublishesReply(t *testing.T) {
	fake := &fakeDescriber{reply: "ok"}
	p, _, _ := newTestPoller(t, camera.NewMockDevice(1280, 720), fake)

	p.tick()

	st := p.Status()
	if st.Reply != "ok" {
		t.Errorf("expected reply ok, got %q", st.Reply)
	}
	if st.Error != "" {
		t.Errorf("expected no error, got %q", st.Error)
	}
}

func TestAtMostOneInFlight(t *testing.T) {
	fake := &fakeDescriber{
		reply:   "ok",
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	p, _, ch := newTestPoller(t, camera.NewMockDevice(1280, 720), fake)

	go p.tick()
	<-fake.started

	// A second firing inside the first request's window is dropped.
	p.tick()
	if got := fake.Calls(); got != 1 {
		t.Fatalf("expected exactly 1 request, got %d", got)
	}

	close(fake.release)
	waitFor(t, ch, func(st Status) bool { return st.Reply == "ok" })

	// Guard cleared: the next tick dispatches again.
	p.tick()
	if got := fake.Calls(); got != 2 {
		t.Errorf("expected 2 requests after guard cleared, got %d", got)
	}
}

func TestPauseKeepsCameraActive(t *testing.T) {
	dev := camera.NewMockDevice(1280, 720)
	fake := &fakeDescriber{reply: "ok"}
	p, cam, ch := newTestPoller(t, dev, fake)

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, ch, func(st Status) bool { return st.Reply == "ok" })

	p.Pause()

	if p.State() != Stopped {
		t.Error("expected Stopped after pause")
	}
	if !cam.Active() {
		t.Error("pause must leave the camera active")
	}
	if dev.Stopped() {
		t.Error("pause must not stop the hardware track")
	}
}

func TestStopAndReleaseStopsCamera(t *testing.T) {
	dev := camera.NewMockDevice(1280, 720)
	fake := &fakeDescriber{reply: "ok"}
	p, cam, ch := newTestPoller(t, dev, fake)

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, ch, func(st Status) bool { return st.Reply == "ok" })

	p.StopAndRelease()

	if p.State() != Stopped {
		t.Error("expected Stopped")
	}
	if cam.Active() {
		t.Error("stop-and-release must release the camera")
	}
	if !dev.Stopped() {
		t.Error("stop-and-release must stop the hardware track")
	}
}

func TestIntervalFixedWhileRunning(t *testing.T) {
	fake := &fakeDescriber{reply: "ok"}
	p, _, _ := newTestPoller(t, camera.NewMockDevice(1280, 720), fake)

	if err := p.SetInterval(50 * time.Millisecond); err != nil {
		t.Fatalf("set interval while stopped: %v", err)
	}

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.SetInterval(10 * time.Millisecond); err != ErrRunning {
		t.Errorf("expected ErrRunning, got %v", err)
	}
	if got := p.Status().IntervalMS; got != 50 {
		t.Errorf("interval changed mid-run: %d", got)
	}

	p.Pause()
	if err := p.SetInterval(10 * time.Millisecond); err != nil {
		t.Errorf("set interval after pause: %v", err)
	}
	if got := p.Status().IntervalMS; got != 10 {
		t.Errorf("expected 10, got %d", got)
	}
}

func TestEmptyCaptureSkipsAndRecovers(t *testing.T) {
	dev := camera.NewMockDevice(1280, 720)
	dev.SetNotReady(true)
	fake := &fakeDescriber{reply: "ok"}
	p, _, _ := newTestPoller(t, dev, fake)

	p.tick()
	if fake.Calls() != 0 {
		t.Error("no request should be sent without a frame")
	}
	if st := p.Status(); !strings.Contains(st.Error, "camera not ready") {
		t.Errorf("expected descriptive skip status, got %q", st.Error)
	}

	// Next tick re-attempts without any reset.
	dev.SetNotReady(false)
	p.tick()
	if st := p.Status(); st.Reply != "ok" || st.Error != "" {
		t.Errorf("expected recovery on next tick, got %+v", st)
	}
}

func TestStartAcquiresCamera(t *testing.T) {
	dev := camera.NewMockDevice(1280, 720)
	cam := camera.NewManager(camera.MockOpener(dev, nil), nil)

	fake := &fakeDescriber{reply: "ok"}
	ch := make(chan Status, 64)
	p := New(cam, fake,
		WithInterval(20*time.Millisecond),
		WithOnStatus(func(st Status) {
			select {
			case ch <- st:
			default:
			}
		}),
	)
	t.Cleanup(p.Dispose)

	if cam.Active() {
		t.Fatal("camera unexpectedly active before start")
	}
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, ch, func(st Status) bool { return st.Reply == "ok" })
	if !cam.Active() {
		t.Error("start should have acquired the camera")
	}
}

func TestDisposeRefusesRestart(t *testing.T) {
	fake := &fakeDescriber{reply: "ok"}
	p, cam, _ := newTestPoller(t, camera.NewMockDevice(1280, 720), fake)

	p.Dispose()
	if cam.Active() {
		t.Error("dispose must release the camera")
	}
	if err := p.Start(); err != ErrDisposed {
		t.Errorf("expected ErrDisposed, got %v", err)
	}
	// Idempotent.
	p.Dispose()
}

// End-to-end over a real inference client: frame geometry, request
// body shape, and both response outcomes.
func TestEndToEndDispatch(t *testing.T) {
	type recorded struct {
		model string
		text  string
		url   string
	}
	var (
		mu      sync.Mutex
		lastReq recorded
		fail    bool
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Content []struct {
					Type     string `json:"type"`
					Text     string `json:"text"`
					ImageURL struct {
						URL string `json:"url"`
					} `json:"image_url"`
				} `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		lastReq = recorded{
			model: body.Model,
			text:  body.Messages[0].Content[0].Text,
			url:   body.Messages[0].Content[1].ImageURL.URL,
		}
		shouldFail := fail
		mu.Unlock()

		if shouldFail {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("boom"))
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := inference.NewClient(inference.WithBaseURL(server.URL))
	defer client.Close()

	dev := camera.NewMockDevice(1280, 720)
	cam := camera.NewManager(camera.MockOpener(dev, nil), nil)
	if err := cam.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	p := New(cam, client,
		WithInterval(time.Second),
		WithInstruction("hi"),
		WithModel("m"),
	)
	t.Cleanup(p.Dispose)

	p.tick()

	if st := p.Status(); st.Reply != "ok" {
		t.Errorf("expected published status ok, got %+v", st)
	}

	mu.Lock()
	req := lastReq
	mu.Unlock()
	if req.model != "m" {
		t.Errorf("expected model m, got %q", req.model)
	}
	if req.text != "hi" {
		t.Errorf("expected instruction hi, got %q", req.text)
	}

	// 1280x720 source must arrive as a 640x360 JPEG.
	const prefix = "data:image/jpeg;base64,"
	if !strings.HasPrefix(req.url, prefix) {
		t.Fatalf("expected JPEG data URL, got %.40q", req.url)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(req.url, prefix))
	if err != nil {
		t.Fatalf("decode image payload: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 640 || b.Dy() != 360 {
		t.Errorf("expected 640x360 frame, got %dx%d", b.Dx(), b.Dy())
	}

	// A 500 with body "boom" surfaces both in the status text.
	mu.Lock()
	fail = true
	mu.Unlock()

	p.tick()
	st := p.Status()
	if !strings.Contains(st.Error, "500") || !strings.Contains(st.Error, "boom") {
		t.Errorf("expected status embedding 500 and boom, got %q", st.Error)
	}
}

func TestUnreachableEndpointRecovers(t *testing.T) {
	client := inference.NewClient(
		inference.WithBaseURL("http://127.0.0.1:1"),
		inference.WithTimeout(2*time.Second),
	)
	defer client.Close()

	dev := camera.NewMockDevice(1280, 720)
	cam := camera.NewManager(camera.MockOpener(dev, nil), nil)
	if err := cam.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	p := New(cam, client, WithInterval(time.Second), WithInstruction("hi"))
	t.Cleanup(p.Dispose)

	p.tick()
	first := p.Status()
	if first.Error == "" {
		t.Fatal("expected network failure in status")
	}

	// Guard is cleared; the next tick fires normally.
	time.Sleep(5 * time.Millisecond)
	p.tick()
	second := p.Status()
	if second.Error == "" {
		t.Fatal("expected error again on retry")
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Error("second tick should have republished status")
	}
}
