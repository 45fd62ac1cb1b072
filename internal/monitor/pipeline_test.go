package monitor

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sua-org/cam-guard/internal/camera"
	"github.com/sua-org/cam-guard/internal/controllers"
	"github.com/sua-org/cam-guard/internal/core"
	"github.com/sua-org/cam-guard/internal/detectors"
)

type fakeSource struct {
	noFrames bool
	noStart  bool
	// frozen repete sempre o mesmo quadro
	frozen bool
	// loseAfter derruba a câmera depois desse número de leituras
	loseAfter int64
	seq       atomic.Uint64
	reads     atomic.Int64
	releases  atomic.Int32
}

func (s *fakeSource) Start() {}
func (s *fakeSource) IsStarted() bool {
	if s.loseAfter > 0 && s.reads.Load() >= s.loseAfter {
		return false
	}
	return !s.noStart
}
func (s *fakeSource) Stop() {}

func (s *fakeSource) ReadLatest() (core.Frame, bool) {
	s.reads.Add(1)
	if s.noFrames {
		return core.Frame{}, false
	}
	n := s.seq.Add(1)
	if s.frozen {
		n = 1
	}
	return core.Frame{Image: image.NewGray(image.Rect(0, 0, 4, 4)), Seq: n, CapturedAt: time.Now()}, true
}

func (s *fakeSource) Release() error {
	s.releases.Add(1)
	return nil
}

// seqDetector devolve bad_count da sequência, um por chamada; depois dela, 0.
type seqDetector struct {
	mu     sync.Mutex
	counts []int
	calls  int
	errAt  int
	closed bool
}

func (d *seqDetector) Predict(_ context.Context, _ image.Image, _ float64) (core.DetectionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.errAt > 0 && d.calls == d.errAt {
		return core.DetectionResult{}, errors.New("inference timeout")
	}
	n := 0
	if d.calls <= len(d.counts) {
		n = d.counts[d.calls-1]
	}
	boxes := make([]core.Box, n)
	return core.DetectionResult{BadCount: n, Boxes: boxes}, nil
}

func (d *seqDetector) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *seqDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type recordingHandler struct {
	mu      sync.Mutex
	results []core.DetectionResult
}

func (h *recordingHandler) Handle(_ context.Context, _ image.Image, r core.DetectionResult) error {
	h.mu.Lock()
	h.results = append(h.results, r)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) Results() []core.DetectionResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]core.DetectionResult(nil), h.results...)
}

type harness struct {
	src  *fakeSource
	det  *seqDetector
	ctrl *controllers.NoopController
	hdl  *recordingHandler
	p    *Pipeline
}

func newHarness(settings Settings, src *fakeSource, det *seqDetector) *harness {
	h := &harness{src: src, det: det, ctrl: controllers.NewNoopController(), hdl: &recordingHandler{}}
	h.p = New(core.ModeLocal, settings, Deps{
		OpenSource:  func() (FrameSource, error) { return h.src, nil },
		NewDetector: func() (detectors.Detector, error) { return h.det, nil },
		Controller:  h.ctrl,
		Handler:     h.hdl,
	})
	return h
}

func fastSettings(failureNum, eventNum int) Settings {
	return Settings{
		InspectionInterval: time.Millisecond,
		FailureNum:         failureNum,
		EventNum:           eventNum,
		QueueSize:          1,
		CaptureRetry:       time.Millisecond,
	}
}

func waitDone(t *testing.T, p *Pipeline, within time.Duration) Outcome {
	t.Helper()
	select {
	case <-p.Done():
		return p.Outcome()
	case <-time.After(within):
		t.Fatalf("pipeline did not finish within %s", within)
		return OutcomeRunning
	}
}

func TestBreachOnThirdQualifyingTick(t *testing.T) {
	det := &seqDetector{counts: []int{1, 3, 0, 5, 9, 9, 9}}
	h := newHarness(fastSettings(2, 3), &fakeSource{}, det)

	require.NoError(t, h.p.Start(context.Background(), NewWindow(time.Minute, time.Now())))
	assert.Equal(t, OutcomeBreach, waitDone(t, h.p, 2*time.Second))

	assert.Equal(t, 5, det.Calls(), "shutdown fires on tick 5, before a 6th tick is processed")
	boots, shutdowns, _ := h.ctrl.Counts()
	assert.Equal(t, 1, boots)
	assert.Equal(t, 1, shutdowns)

	results := h.hdl.Results()
	require.Len(t, results, 1)
	assert.Equal(t, 9, results[0].BadCount)

	assert.False(t, h.p.State().Running())
	assert.EqualValues(t, 1, h.src.releases.Load())
	assert.True(t, det.closed)
}

func TestCounterMatchesQualifyingTicks(t *testing.T) {
	cases := []struct {
		name     string
		counts   []int
		fail     int
		events   int
		wantCall int
	}{
		{"all bad", []int{6, 6, 6}, 5, 3, 3},
		{"noise at threshold is healthy", []int{5, 5, 6, 5, 6}, 5, 2, 5},
		{"single event", []int{0, 0, 1}, 0, 1, 3},
		{"interleaved", []int{9, 0, 9, 0, 9, 0, 9}, 3, 4, 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			det := &seqDetector{counts: tc.counts}
			h := newHarness(fastSettings(tc.fail, tc.events), &fakeSource{}, det)
			require.NoError(t, h.p.Start(context.Background(), NewWindow(time.Minute, time.Now())))
			assert.Equal(t, OutcomeBreach, waitDone(t, h.p, 2*time.Second))
			assert.Equal(t, tc.wantCall, det.Calls())
			_, shutdowns, _ := h.ctrl.Counts()
			assert.Equal(t, 1, shutdowns)
		})
	}
}

func TestWindowTimeoutWithoutBreach(t *testing.T) {
	det := &seqDetector{counts: []int{1, 2, 1, 0}}
	h := newHarness(fastSettings(2, 3), &fakeSource{}, det)

	start := time.Now()
	require.NoError(t, h.p.Start(context.Background(), NewWindow(100*time.Millisecond, start)))
	assert.Equal(t, OutcomeTimeout, waitDone(t, h.p, 2*time.Second))
	assert.Less(t, time.Since(start), time.Second)

	_, shutdowns, _ := h.ctrl.Counts()
	assert.Zero(t, shutdowns)
	assert.Empty(t, h.hdl.Results())
	assert.False(t, h.p.State().Running())
}

func TestLongIntervalStillHonoursWindow(t *testing.T) {
	settings := fastSettings(2, 3)
	settings.InspectionInterval = time.Hour
	h := newHarness(settings, &fakeSource{}, &seqDetector{})

	start := time.Now()
	require.NoError(t, h.p.Start(context.Background(), NewWindow(80*time.Millisecond, start)))
	assert.Equal(t, OutcomeTimeout, waitDone(t, h.p, 2*time.Second))
	assert.Less(t, time.Since(start), time.Second)
}

func TestNoFramesEverTimesOutCleanly(t *testing.T) {
	src := &fakeSource{noFrames: true}
	det := &seqDetector{}
	h := newHarness(fastSettings(2, 3), src, det)

	require.NoError(t, h.p.Start(context.Background(), NewWindow(100*time.Millisecond, time.Now())))
	assert.Equal(t, OutcomeTimeout, waitDone(t, h.p, 2*time.Second))

	assert.Zero(t, det.Calls(), "no event was ever pushed")
	assert.Greater(t, src.reads.Load(), int64(1), "capture is retried")
	assert.EqualValues(t, 1, src.releases.Load())
}

func TestExternalStopUnblocksBothLoops(t *testing.T) {
	settings := fastSettings(2, 3)
	settings.InspectionInterval = time.Hour
	h := newHarness(settings, &fakeSource{}, &seqDetector{})

	require.NoError(t, h.p.Start(context.Background(), NewWindow(time.Hour, time.Now())))
	require.Eventually(t, func() bool { return h.det.Calls() == 1 }, time.Second, time.Millisecond)

	// inspector dorme o intervalo e o decision loop está bloqueado no pop
	h.p.Stop()
	assert.Equal(t, OutcomeStopped, waitDone(t, h.p, time.Second))

	_, shutdowns, _ := h.ctrl.Counts()
	assert.Zero(t, shutdowns)
	assert.EqualValues(t, 1, h.src.releases.Load())
}

func TestCameraOpenFailureEndsPipeline(t *testing.T) {
	ctrl := controllers.NewNoopController()
	det := &seqDetector{}
	p := New(core.ModeOnline, fastSettings(2, 3), Deps{
		OpenSource:  func() (FrameSource, error) { return nil, errors.New("can't turn on the camera") },
		NewDetector: func() (detectors.Detector, error) { return det, nil },
		Controller:  ctrl,
	})

	require.NoError(t, p.Start(context.Background(), NewWindow(time.Hour, time.Now())))
	assert.Equal(t, OutcomeFailed, waitDone(t, p, time.Second))
	_, shutdowns, _ := ctrl.Counts()
	assert.Zero(t, shutdowns)
	assert.True(t, det.closed)
}

func TestCameraNotStartedReleases(t *testing.T) {
	src := &fakeSource{noStart: true}
	h := newHarness(fastSettings(2, 3), src, &seqDetector{})

	require.NoError(t, h.p.Start(context.Background(), NewWindow(time.Hour, time.Now())))
	assert.Equal(t, OutcomeFailed, waitDone(t, h.p, time.Second))
	assert.EqualValues(t, 1, src.releases.Load())
}

func TestDetectorInstantiationFailure(t *testing.T) {
	src := &fakeSource{}
	p := New(core.ModeLocal, fastSettings(2, 3), Deps{
		OpenSource:  func() (FrameSource, error) { return src, nil },
		NewDetector: func() (detectors.Detector, error) { return nil, errors.New("model.nb not found") },
		Controller:  controllers.NewNoopController(),
	})

	require.NoError(t, p.Start(context.Background(), NewWindow(time.Hour, time.Now())))
	assert.Equal(t, OutcomeFailed, waitDone(t, p, time.Second))
	assert.EqualValues(t, 1, src.releases.Load())
}

func TestDetectorErrorSkipsTick(t *testing.T) {
	det := &seqDetector{counts: []int{9, 9, 9}, errAt: 2}
	h := newHarness(fastSettings(2, 2), &fakeSource{}, det)

	require.NoError(t, h.p.Start(context.Background(), NewWindow(time.Minute, time.Now())))
	assert.Equal(t, OutcomeBreach, waitDone(t, h.p, 2*time.Second))
	assert.Equal(t, 3, det.Calls())
}

type failingBoot struct{ controllers.NoopController }

func (*failingBoot) Boot() error { return errors.New("serial port busy") }

func TestBootFailure(t *testing.T) {
	src := &fakeSource{}
	p := New(core.ModeLocal, fastSettings(2, 3), Deps{
		OpenSource:  func() (FrameSource, error) { return src, nil },
		NewDetector: func() (detectors.Detector, error) { return &seqDetector{}, nil },
		Controller:  &failingBoot{},
	})

	err := p.Start(context.Background(), NewWindow(time.Hour, time.Now()))
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, waitDone(t, p, time.Second))
	assert.Zero(t, src.reads.Load())
}

func TestStartTwice(t *testing.T) {
	h := newHarness(fastSettings(2, 3), &fakeSource{}, &seqDetector{})
	require.NoError(t, h.p.Start(context.Background(), NewWindow(time.Minute, time.Now())))
	assert.ErrorIs(t, h.p.Start(context.Background(), NewWindow(time.Minute, time.Now())), ErrAlreadyStarted)
	h.p.Stop()
	h.p.Wait()
}

func TestWaitBeforeStart(t *testing.T) {
	h := newHarness(fastSettings(2, 3), &fakeSource{}, &seqDetector{})
	assert.Equal(t, OutcomePending, h.p.Wait())
}

func TestFrozenFrameIsInspectedOnce(t *testing.T) {
	src := &fakeSource{frozen: true}
	det := &seqDetector{counts: []int{9, 9, 9, 9, 9}}
	h := newHarness(fastSettings(2, 3), src, det)

	require.NoError(t, h.p.Start(context.Background(), NewWindow(100*time.Millisecond, time.Now())))
	assert.Equal(t, OutcomeTimeout, waitDone(t, h.p, 2*time.Second))

	assert.Equal(t, 1, det.Calls(), "a repeated frame is not a new event")
	assert.Greater(t, src.reads.Load(), int64(1))
	_, shutdowns, _ := h.ctrl.Counts()
	assert.Zero(t, shutdowns)
}

func TestCameraLostMidRunFails(t *testing.T) {
	src := &fakeSource{loseAfter: 2}
	det := &seqDetector{counts: []int{9, 9, 9, 9, 9}}
	h := newHarness(fastSettings(2, 5), src, det)

	require.NoError(t, h.p.Start(context.Background(), NewWindow(time.Minute, time.Now())))
	assert.Equal(t, OutcomeFailed, waitDone(t, h.p, 2*time.Second))

	_, shutdowns, _ := h.ctrl.Counts()
	assert.Zero(t, shutdowns)
	assert.LessOrEqual(t, det.Calls(), 2)
	assert.EqualValues(t, 1, src.releases.Load())
}

// oneShotDevice entrega um quadro e depois só erro, como uma câmera USB
// desconectada.
type oneShotDevice struct {
	reads  atomic.Int32
	closes atomic.Int32
}

func (d *oneShotDevice) Read() (image.Image, error) {
	if d.reads.Add(1) == 1 {
		return image.NewGray(image.Rect(0, 0, 4, 4)), nil
	}
	time.Sleep(time.Millisecond)
	return nil, errors.New("VIDIOC_DQBUF: No such device")
}

func (d *oneShotDevice) Close() error {
	d.closes.Add(1)
	return nil
}

func TestDeadCameraDoesNotTriggerShutdown(t *testing.T) {
	dev := &oneShotDevice{}
	det := &seqDetector{counts: []int{9, 9, 9, 9, 9, 9, 9, 9}}
	ctrl := controllers.NewNoopController()
	p := New(core.ModeLocal, fastSettings(2, 5), Deps{
		OpenSource: func() (FrameSource, error) {
			src := camera.NewFrameSource(dev)
			return src, nil
		},
		NewDetector: func() (detectors.Detector, error) { return det, nil },
		Controller:  ctrl,
		Handler:     &recordingHandler{},
	})

	require.NoError(t, p.Start(context.Background(), NewWindow(time.Minute, time.Now())))
	assert.Equal(t, OutcomeFailed, waitDone(t, p, 5*time.Second))

	assert.Equal(t, 1, det.Calls())
	_, shutdowns, _ := ctrl.Counts()
	assert.Zero(t, shutdowns)
	assert.EqualValues(t, 1, dev.closes.Load())
}
