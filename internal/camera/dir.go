// internal/camera/dir.go
package camera

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// intervalo entre quadros do backend dir (~5 fps)
const dirFrameInterval = 200 * time.Millisecond

// DirDevice reproduz em loop as imagens de um diretório, em ordem lexical.
// Serve para rodar o monitor em bancada sem câmera.
type DirDevice struct {
	files    []string
	interval time.Duration

	mu     sync.Mutex
	next   int
	closed bool
}

func init() {
	RegisterBackend("dir", func(source string) (Device, error) {
		return NewDirDevice(source, dirFrameInterval)
	})
}

func NewDirDevice(dir string, interval time.Duration) (*DirDevice, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("frame dir %s sem imagens", dir)
	}
	sort.Strings(files)
	return &DirDevice{files: files, interval: interval}, nil
}

func (d *DirDevice) Read() (image.Image, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	path := d.files[d.next]
	d.next = (d.next + 1) % len(d.files)
	d.mu.Unlock()

	if d.interval > 0 {
		time.Sleep(d.interval)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func (d *DirDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
