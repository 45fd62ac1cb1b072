// internal/opencv/capture.go
package opencv

import (
	"fmt"
	"image"
	"log"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/sua-org/cam-guard/internal/camera"
)

func init() {
	camera.RegisterBackend("opencv", func(source string) (camera.Device, error) {
		return OpenCapture(source)
	})
}

// Capture lê quadros de uma câmera local (índice) ou de um stream (URL).
type Capture struct {
	mu     sync.Mutex
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

func OpenCapture(source string) (*Capture, error) {
	var device interface{} = source
	if idx, err := strconv.Atoi(source); err == nil {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open camera %q: %w", source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("camera %q não abriu", source)
	}
	// só o último quadro interessa
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	log.Printf("[camera] opencv aberto em %q (%.0fx%.0f @ %.1f fps)", source,
		vc.Get(gocv.VideoCaptureFrameWidth), vc.Get(gocv.VideoCaptureFrameHeight), vc.Get(gocv.VideoCaptureFPS))

	return &Capture{cap: vc, mat: gocv.NewMat()}, nil
}

func (c *Capture) Read() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, camera.ErrClosed
	}
	if ok := c.cap.Read(&c.mat); !ok {
		return nil, fmt.Errorf("read frame failed")
	}
	if c.mat.Empty() {
		return nil, fmt.Errorf("empty frame")
	}
	return c.mat.ToImage()
}

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.mat.Close()
	return c.cap.Close()
}
