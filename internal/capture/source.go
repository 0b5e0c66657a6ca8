package capture

import "sync"

// Frame is one still image, JPEG-encoded, as delivered by the renderer's
// camera plumbing.
type Frame []byte

// Source hands out the most recent frame on demand. The second return is
// false while no frame is available; the game must tolerate that state and
// skip detection.
type Source interface {
	Frame() (Frame, bool)
}

// Latest is a concurrency-safe holder for the newest frame pushed over the
// render boundary. The detection loop only ever wants the freshest still,
// so older frames are simply overwritten.
type Latest struct {
	mu    sync.RWMutex
	frame Frame
}

func NewLatest() *Latest {
	return &Latest{}
}

// Set stores f as the current frame. A copy is kept so the caller may reuse
// its buffer.
func (l *Latest) Set(f Frame) {
	cp := make(Frame, len(f))
	copy(cp, f)
	l.mu.Lock()
	l.frame = cp
	l.mu.Unlock()
}

// Clear drops the held frame, returning the source to "no capture
// available".
func (l *Latest) Clear() {
	l.mu.Lock()
	l.frame = nil
	l.mu.Unlock()
}

func (l *Latest) Frame() (Frame, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.frame == nil {
		return nil, false
	}
	return l.frame, true
}
