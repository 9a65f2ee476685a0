package qlm

import (
	"fmt"
	"io"
	"strings"
)

// StateStream is a channel pipeline stage carrying enumerated states.
type StateStream struct {
	Outlet chan SectorState
	err    error
}

func NewStateStream() *StateStream {
	stream := &StateStream{
		Outlet: make(chan SectorState, 1),
	}
	return stream
}

// StreamStates emits the given states and closes.
func StreamStates(states []SectorState) *StateStream {
	next := NewStateStream()

	go func() {
		for _, X := range states {
			next.Outlet <- X
		}
		next.Close()
	}()

	return next
}

// StreamFrom runs fill on its own goroutine with the returned stream as its sink.
// The stream closes once fill returns, and Err reports what fill returned.
func StreamFrom(fill func(sink StateSink) error) *StateStream {
	next := NewStateStream()

	go func() {
		next.err = fill(next)
		next.Close()
	}()

	return next
}

func (stream *StateStream) Close() {
	if stream.Outlet != nil {
		close(stream.Outlet)
	}
}

// Err returns the first error a stage hit; only valid once Outlet has been drained.
func (stream *StateStream) Err() error {
	return stream.err
}

// WriteStates pushes a batch into this stream, so a stream can serve as a search sink.
func (stream *StateStream) WriteStates(batch []SectorState) error {
	for _, X := range batch {
		stream.Outlet <- X
	}
	return nil
}

// PullAll drains the stream and returns the number of states seen.
func (stream *StateStream) PullAll() int {
	count := 0
	for range stream.Outlet {
		count++
	}
	return count
}

// Collect drains the stream and returns its states in arrival order.
func (stream *StateStream) Collect() []State {
	var states []State
	for X := range stream.Outlet {
		states = append(states, X.State)
	}
	return states
}

func (stream *StateStream) SelectSector(sec Sector) *StateStream {
	next := NewStateStream()

	go func() {
		for X := range stream.Outlet {
			if X.Sector == sec {
				next.Outlet <- X
			}
		}
		next.err = stream.err
		next.Close()
	}()

	return next
}

// AddTo forwards every state to the next stage and writes them to target in batches of batchSize.
func (stream *StateStream) AddTo(target StateSink, batchSize int) *StateStream {
	if batchSize < 1 {
		batchSize = 1
	}
	next := NewStateStream()

	go func() {
		batch := make([]SectorState, 0, batchSize)
		var err error
		for X := range stream.Outlet {
			if err == nil {
				batch = append(batch, X)
				if len(batch) == batchSize {
					err = target.WriteStates(batch)
					batch = batch[:0]
				}
			}
			next.Outlet <- X
		}
		if err == nil && len(batch) > 0 {
			err = target.WriteStates(batch)
		}
		if err == nil {
			err = stream.err
		}
		next.err = err
		next.Close()
	}()

	return next
}

func SelectFromCatalog(cat Catalog, sec Sector) *StateStream {
	next := NewStateStream()

	onHit := make(chan SectorState, 4)

	go func() {
		next.err = cat.Select(sec, onHit)
		close(onHit)
	}()

	go func() {
		for X := range onHit {
			next.Outlet <- X
		}
		next.Close()
	}()

	return next
}

// Print writes one line per state ("label,000001,tag,state") and forwards it.
func (stream *StateStream) Print(out io.WriteCloser, label string) *StateStream {
	next := NewStateStream()

	go func() {
		buf := strings.Builder{}
		buf.Grow(128)

		count := 0
		var err error
		for X := range stream.Outlet {
			if len(label) > 0 {
				buf.WriteString(label)
			}
			buf.WriteByte(',')

			count++
			fmt.Fprintf(&buf, "%06d,%s,%s\n", count, X.Sector.Tag(), X.State.String())
			if _, werr := out.Write([]byte(buf.String())); werr != nil && err == nil {
				err = werr
			}
			buf.Reset()
			next.Outlet <- X
		}
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err == nil {
			err = stream.err
		}
		next.err = err
		next.Close()
	}()

	return next
}
