package camera

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingDevice devolve uma imagem 1x1 cuja cor codifica o número do quadro.
type countingDevice struct {
	interval time.Duration
	n        atomic.Int64
	closes   atomic.Int32
	failAt   int64
	endAt    int64
}

func (d *countingDevice) Read() (image.Image, error) {
	time.Sleep(d.interval)
	n := d.n.Add(1)
	if d.endAt > 0 && n >= d.endAt {
		return nil, ErrClosed
	}
	if d.failAt > 0 && n%d.failAt == 0 {
		return nil, errors.New("transient")
	}
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	img.SetGray(0, 0, color.Gray{Y: uint8(n)})
	return img, nil
}

func (d *countingDevice) Close() error {
	d.closes.Add(1)
	return nil
}

func TestReadLatestBeforeFirstFrame(t *testing.T) {
	src := NewFrameSource(&countingDevice{interval: time.Hour})
	_, ok := src.ReadLatest()
	assert.False(t, ok)
	assert.False(t, src.IsStarted())
}

func TestReadLatestNeverBlocksAndTracksNewest(t *testing.T) {
	dev := &countingDevice{interval: 2 * time.Millisecond, failAt: 5}
	src := NewFrameSource(dev)
	src.Start()
	defer src.Release()

	require.Eventually(t, func() bool {
		_, ok := src.ReadLatest()
		return ok
	}, time.Second, time.Millisecond)
	assert.True(t, src.IsStarted())

	var last uint64
	for i := 0; i < 5; i++ {
		start := time.Now()
		f, ok := src.ReadLatest()
		require.True(t, ok)
		assert.Less(t, time.Since(start), 5*time.Millisecond, "ReadLatest must not wait for capture")
		assert.GreaterOrEqual(t, f.Seq, last)
		last = f.Seq
		time.Sleep(20 * time.Millisecond)
	}

	// consumidor lento: o quadro lido é sempre recente, a fila não acumula
	f, _ := src.ReadLatest()
	assert.Less(t, time.Since(f.CapturedAt), 50*time.Millisecond)
}

func TestStopJoinsCaptureAndReleaseClosesOnce(t *testing.T) {
	dev := &countingDevice{interval: time.Millisecond}
	src := NewFrameSource(dev)
	src.Start()
	time.Sleep(10 * time.Millisecond)

	src.Stop()
	assert.False(t, src.IsStarted())
	n := dev.n.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, n, dev.n.Load(), "no reads after Stop returns")

	require.NoError(t, src.Release())
	require.NoError(t, src.Release())
	assert.EqualValues(t, 1, dev.closes.Load())
}

func TestReleaseWithoutStart(t *testing.T) {
	dev := &countingDevice{interval: time.Millisecond}
	src := NewFrameSource(dev)
	require.NoError(t, src.Release())
	assert.EqualValues(t, 1, dev.closes.Load())
}

func TestDeviceEndStopsCapture(t *testing.T) {
	dev := &countingDevice{interval: time.Millisecond, endAt: 3}
	src := NewFrameSource(dev)
	src.Start()
	defer src.Release()

	require.Eventually(t, func() bool { return !src.IsStarted() }, time.Second, time.Millisecond)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("v4l", "0")
	assert.ErrorIs(t, err, ErrBackendNotFound)
}

func TestDirBackendLoops(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"b.png", "a.png"} {
		img := image.NewGray(image.Rect(0, 0, 2, 2))
		img.SetGray(0, 0, color.Gray{Y: uint8(10 * (i + 1))})
		f, err := os.Create(filepath.Join(dir, name))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	dev, err := NewDirDevice(dir, 0)
	require.NoError(t, err)

	var got []uint8
	for i := 0; i < 3; i++ {
		img, err := dev.Read()
		require.NoError(t, err)
		got = append(got, img.(*image.Gray).GrayAt(0, 0).Y)
	}
	// a.png (20), b.png (10), a.png de novo
	assert.Equal(t, []uint8{20, 10, 20}, got)

	require.NoError(t, dev.Close())
	_, err = dev.Read()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDirBackendEmpty(t *testing.T) {
	_, err := NewDirDevice(t.TempDir(), 0)
	require.Error(t, err)
}

func TestConcurrentReaders(t *testing.T) {
	src := NewFrameSource(&countingDevice{interval: time.Millisecond})
	src.Start()
	defer src.Release()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				src.ReadLatest()
			}
		}()
	}
	wg.Wait()
}

// dyingDevice entrega quadros até deadAfter e depois só devolve erro.
type dyingDevice struct {
	countingDevice
	deadAfter int64
}

func (d *dyingDevice) Read() (image.Image, error) {
	if d.n.Load() >= d.deadAfter {
		time.Sleep(time.Millisecond)
		return nil, errors.New("select timeout")
	}
	return d.countingDevice.Read()
}

func TestPersistentReadErrorsMarkCameraLost(t *testing.T) {
	dev := &dyingDevice{deadAfter: 1}
	src := NewFrameSource(dev)
	src.Start()
	defer src.Release()

	require.Eventually(t, func() bool {
		_, ok := src.ReadLatest()
		return ok
	}, time.Second, time.Millisecond)

	// o último quadro não pode continuar sendo servido depois da câmera morrer
	require.Eventually(t, func() bool { return !src.IsStarted() }, 2*time.Second, 5*time.Millisecond)
	_, ok := src.ReadLatest()
	assert.False(t, ok)
}

func TestTransientErrorsResetFailureCount(t *testing.T) {
	// um erro a cada 2 leituras nunca soma erros seguidos suficientes
	dev := &countingDevice{failAt: 2}
	src := NewFrameSource(dev)
	src.Start()
	defer src.Release()

	require.Eventually(t, func() bool { return dev.n.Load() > 3*maxConsecutiveReadErrors }, 2*time.Second, time.Millisecond)
	assert.True(t, src.IsStarted())
}

// stuckDevice trava no Read até unblock ser fechado.
type stuckDevice struct {
	unblock chan struct{}
	closes  atomic.Int32
}

func (d *stuckDevice) Read() (image.Image, error) {
	<-d.unblock
	return nil, ErrClosed
}

func (d *stuckDevice) Close() error {
	d.closes.Add(1)
	return nil
}

func TestStopDoesNotHangOnStuckRead(t *testing.T) {
	dev := &stuckDevice{unblock: make(chan struct{})}
	src := NewFrameSource(dev)
	src.stopTimeout = 20 * time.Millisecond
	src.Start()

	start := time.Now()
	require.NoError(t, src.Release())
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, dev.closes.Load(), "device is not closed under a pending Read")

	close(dev.unblock)
	require.Eventually(t, func() bool { return dev.closes.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, src.Release())
	assert.EqualValues(t, 1, dev.closes.Load())
}
