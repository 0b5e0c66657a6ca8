package capture

import (
	"bytes"
	"testing"
)

func TestLatestStartsEmpty(t *testing.T) {
	l := NewLatest()
	if _, ok := l.Frame(); ok {
		t.Fatal("fresh holder should report no frame")
	}
}

func TestLatestKeepsNewestFrame(t *testing.T) {
	l := NewLatest()
	l.Set(Frame("first"))
	l.Set(Frame("second"))

	f, ok := l.Frame()
	if !ok {
		t.Fatal("frame should be available after Set")
	}
	if !bytes.Equal(f, []byte("second")) {
		t.Fatalf("expected newest frame, got %q", f)
	}
}

func TestLatestCopiesCallerBuffer(t *testing.T) {
	l := NewLatest()
	buf := []byte("abc")
	l.Set(buf)
	buf[0] = 'x'

	f, _ := l.Frame()
	if !bytes.Equal(f, []byte("abc")) {
		t.Fatalf("holder should keep its own copy, got %q", f)
	}
}

func TestLatestClear(t *testing.T) {
	l := NewLatest()
	l.Set(Frame("frame"))
	l.Clear()
	if _, ok := l.Frame(); ok {
		t.Fatal("Clear should drop the held frame")
	}
}
