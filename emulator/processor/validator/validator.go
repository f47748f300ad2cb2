/*
Copyright (c) 2019-2021 Andreas T Jonsson

This software is provided 'as-is', without any express or implied
warranty. In no event will the authors be held liable for any damages
arising from the use of this software.

Permission is granted to anyone to use this software for any purpose,
including commercial applications, and to alter it and redistribute it
freely, subject to the following restrictions:

1. The origin of this software must not be misrepresented; you must not
   claim that you wrote the original software. If you use this software
   in a product, an acknowledgment in the product documentation would be
   appreciated but is not required.
2. Altered source versions must be plainly marked as such, and must not be
   misrepresented as being the original software.
3. This notice may not be removed or altered from any source distribution.
*/

// Package validator records mode transitions as a stream of JSON events so
// two runs, or a run and a reference CPU, can be compared afterwards.
package validator

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"sync"

	"github.com/andreas-jonsson/virtualx86/emulator/peripheral/debug"
	"github.com/andreas-jonsson/virtualx86/emulator/processor"
)

const (
	DefaultQueueSize  = 1024
	DefaultBufferSize = 0x100000 // 1MB
)

// Recorder encodes events on a background goroutine. It implements
// processor.Recorder.
type Recorder struct {
	out  chan Event
	quit chan struct{}
	seq  int
	err  error

	mu     sync.Mutex
	closed bool
}

// NewRecorder starts writing to w. Output is flushed whenever the buffer
// grows past bufferSize and when the recorder is closed. With compress set
// the stream is gzipped.
func NewRecorder(w io.Writer, compress bool, queueSize, bufferSize int) *Recorder {
	r := &Recorder{
		out:  make(chan Event, queueSize),
		quit: make(chan struct{}),
	}

	var zw *gzip.Writer
	if compress {
		zw = gzip.NewWriter(w)
		w = zw
	}

	go func() {
		var buffer bytes.Buffer
		defer close(r.quit)
		defer func() {
			if _, err := io.Copy(w, &buffer); err != nil && r.err == nil {
				r.err = err
			}
			if zw != nil {
				if err := zw.Close(); err != nil && r.err == nil {
					r.err = err
				}
			}
		}()

		enc := json.NewEncoder(&buffer)
		for ev := range r.out {
			if r.err != nil {
				continue
			}
			if err := enc.Encode(ev); err != nil {
				r.err = err
				continue
			}
			if buffer.Len() >= bufferSize {
				debug.Log.WithField("bytes", buffer.Len()).Debug("flush validation events")
				if _, err := io.Copy(w, &buffer); err != nil {
					r.err = err
				}
			}
		}
	}()
	return r
}

// Record queues an event. Events recorded after Close are dropped.
func (r *Recorder) Record(event string, st processor.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		debug.Log.WithField("event", event).Debug("recorder closed, event dropped")
		return
	}
	r.seq++
	r.out <- Event{Seq: r.seq, Kind: event, State: st}
}

// Close flushes the remaining events and reports the first write error.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.out)
	}
	r.mu.Unlock()
	<-r.quit
	return r.err
}
