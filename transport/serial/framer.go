// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package serial

import (
	"fmt"
	"io"
	"time"

	"github.com/ffutop/sp-gateway/internal/fault"
)

// ErrOverflow reports a frame longer than the framer's buffer. The
// remaining bytes of that frame are discarded up to the next silence.
var ErrOverflow = fmt.Errorf("serial: frame overflow: %w", fault.ErrResource)

// Framer accumulates received bytes and cuts a frame once the line has
// been silent for the configured time.
type Framer struct {
	buf     []byte
	last    time.Time
	discard bool
}

// NewFramer creates a framer for frames of at most max bytes.
func NewFramer(max int) *Framer {
	return &Framer{buf: make([]byte, 0, max)}
}

// Feed appends bytes received at now.
func (f *Framer) Feed(p []byte, now time.Time) error {
	if len(p) == 0 {
		return nil
	}
	f.last = now
	if f.discard {
		return nil
	}
	if len(f.buf)+len(p) > cap(f.buf) {
		f.buf = f.buf[:0]
		f.discard = true
		return ErrOverflow
	}
	f.buf = append(f.buf, p...)
	return nil
}

// Next returns the pending frame if the line has been silent for at
// least silence at now. The frame is valid until the next Feed.
func (f *Framer) Next(now time.Time, silence time.Duration) ([]byte, bool) {
	if len(f.buf) == 0 && !f.discard {
		return nil, false
	}
	if now.Sub(f.last) < silence {
		return nil, false
	}
	if f.discard {
		f.discard = false
		return nil, false
	}
	frame := f.buf
	f.buf = f.buf[:0]
	return frame, true
}

// Pending reports the number of buffered bytes.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Reset drops any partial frame.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.discard = false
}

// Reader drives a Framer from a port with a bounded read timeout.
type Reader struct {
	port   io.Reader
	framer *Framer
	chunk  []byte

	// Now is the clock used to timestamp reads.
	Now func() time.Time
}

// NewReader creates a Reader for frames of at most max bytes.
func NewReader(port io.Reader, max int) *Reader {
	return &Reader{
		port:   port,
		framer: NewFramer(max),
		chunk:  make([]byte, max),
		Now:    time.Now,
	}
}

// Poll performs one read and returns a frame once silence has ended it.
// A read error is returned after the framer has been checked, so a
// frame finished by a read timeout is not lost.
func (r *Reader) Poll(silence time.Duration) (frame []byte, err error) {
	n, rerr := r.port.Read(r.chunk)
	now := r.Now()
	if n > 0 {
		err = r.framer.Feed(r.chunk[:n], now)
	}
	if f, ok := r.framer.Next(now, silence); ok {
		frame = f
	}
	if err == nil {
		err = rerr
	}
	return frame, err
}

// Reset drops any partial frame.
func (r *Reader) Reset() {
	r.framer.Reset()
}
