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

package validator

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/andreas-jonsson/virtualx86/emulator/processor"
)

type Event struct {
	Seq   int
	Kind  string
	State processor.State
}

var gzipMagic = []byte{0x1F, 0x8B}

// Load reads a stream written by Recorder, compressed or not.
func Load(r io.Reader) ([]Event, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1] {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	} else {
		r = br
	}

	var events []Event
	dec := json.NewDecoder(r)
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return events, fmt.Errorf("event %d: %w", len(events)+1, err)
		}
		events = append(events, ev)
	}
}

// Options selects what Compare looks at.
type Options struct {
	// IgnoreHidden skips the descriptor caches and compares selectors only.
	IgnoreHidden bool
	// IgnoreDebug skips DR0-DR7.
	IgnoreDebug bool
}

func (o Options) cmpOptions() []cmp.Option {
	var opts []cmp.Option
	if o.IgnoreHidden {
		opts = append(opts, cmpopts.IgnoreFields(processor.Segment{}, "Base", "Limit", "LimitLow", "LimitHigh", "Access", "ARHigh", "Checked"))
	}
	if o.IgnoreDebug {
		opts = append(opts, cmpopts.IgnoreFields(processor.State{}, "DR"))
	}
	return opts
}

// Compare walks both streams in step and returns one report per mismatching
// event. A length mismatch is reported last.
func Compare(got, want []Event, o Options) []string {
	var report []string
	opts := o.cmpOptions()

	n := len(got)
	if len(want) < n {
		n = len(want)
	}
	for i := 0; i < n; i++ {
		a, b := &got[i], &want[i]
		if a.Kind != b.Kind {
			report = append(report, fmt.Sprintf("event %d: kind %q, want %q", i+1, a.Kind, b.Kind))
			continue
		}
		if diff := cmp.Diff(b.State, a.State, opts...); diff != "" {
			report = append(report, fmt.Sprintf("event %d (%s) (-want +got):\n%s", i+1, a.Kind, diff))
		}
	}
	if len(got) != len(want) {
		report = append(report, fmt.Sprintf("got %d events, want %d", len(got), len(want)))
	}
	return report
}
