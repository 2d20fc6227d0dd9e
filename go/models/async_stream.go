package models

import (
	"io"
	"time"

	"github.com/pkg/errors"
)

// AsyncWriter decouples a writer from its callers: Write hands the payload
// to a goroutine which batches and flushes in the background, so slow disks
// never stall the receiver loop. Buffered data is flushed at the latest
// 25ms after it was written, or earlier once enough of it piles up.
type AsyncWriter struct {
	io.WriteCloser
	closed bool
	close  chan chan error
	write  chan []byte

	buffer [][]byte
	count  uint64
}

func NewAsyncWriter(w io.WriteCloser) io.WriteCloser {
	a := &AsyncWriter{
		WriteCloser: w,
		close:       make(chan chan error),
		write:       make(chan []byte, 1000),
	}
	go a.run()
	return a
}

func (a *AsyncWriter) flush() {
	for _, p := range a.buffer {
		if _, err := a.WriteCloser.Write(p); err != nil {
			a.closed = true
			break
		}
	}
	a.buffer = a.buffer[:0]
	a.count = 0
}

func (a *AsyncWriter) run() {
	duration := 25 * time.Millisecond
	t := time.NewTimer(duration)
	timer := false
	for !a.closed {
		select {
		case <-t.C:
			a.flush()
			timer = false
		case p := <-a.write:
			a.buffer = append(a.buffer, p)
			a.count += uint64(len(p))
			if len(a.buffer) > 1000 || a.count > 64000 {
				a.flush()
			}
		case done := <-a.close:
			a.flush()
			done <- a.WriteCloser.Close()
			a.closed = true
		}
		if len(a.buffer) > 0 && !timer {
			timer = true
			t.Reset(duration)
		}
	}
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func (a *AsyncWriter) Write(p []byte) (int, error) {
	if a.closed {
		return 0, errors.New("async writer is closed")
	}
	tmp := make([]byte, len(p))
	copy(tmp, p)
	a.write <- tmp
	return len(tmp), nil
}

func (a *AsyncWriter) Close() error {
	if a.closed {
		return errors.New("async writer was already closed")
	}
	done := make(chan error)
	a.close <- done
	return <-done
}
