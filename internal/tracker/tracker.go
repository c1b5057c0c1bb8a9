// Package tracker implements TrackerFacade (spec.md §4.7), the public
// driver that accepts frames of reports and publishes finalised track
// elements and false alarms. It owns a single Scanner for the run's
// lifetime and optionally mirrors every emitted record into a durable
// sink (internal/store).
package tracker

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/fenwick-labs/cornermht/internal/motion"
	"github.com/fenwick-labs/cornermht/internal/scanner"
)

// Sink is the subset of internal/store's *Store the facade needs to
// mirror finalised records into durable storage. Satisfied by
// *store.Store; accepting an interface here keeps this package free of
// a hard dependency on database/sql and the sqlite driver for callers
// that only want the in-memory channel API.
type Sink interface {
	RecordRun(runID, modelName string) error
	RecordTrackElements(runID string, trackID int64, elems []scanner.ConfirmedElement) error
	RecordFalseAlarms(runID string, alarms []scanner.FalseAlarm) error
}

// Facade is the public driver (spec.md §4.7 TrackerFacade). Submit and
// Drain are synchronous: the single-threaded cooperative model (spec.md
// §5) means a scan always completes before the facade accepts the next
// one.
type Facade struct {
	RunID string

	sc   *scanner.Scanner
	sink Sink

	confirmedBuf []scanner.ConfirmedElement
	falseBuf     []scanner.FalseAlarm
}

// New creates a Facade for one tracking run, minting a fresh RunID
// (spec.md §9's domain-stack wiring: google/uuid, as the teacher's
// l5tracks package mints TrackID strings with uuid.New()).
func New(cfg motion.Config, sink Sink) (*Facade, error) {
	f := &Facade{
		RunID: uuid.New().String(),
		sc:    scanner.New(cfg),
		sink:  sink,
	}
	if sink != nil {
		if err := sink.RecordRun(f.RunID, scanner.ModelName); err != nil {
			return nil, fmt.Errorf("tracker: recording run: %w", err)
		}
	}
	return f, nil
}

// Submit processes one frame's reports, blocking until the scan
// completes (spec.md §5). Frames must arrive in strictly increasing
// order; submitting out of order returns a *scanner.ErrProtocol.
func (f *Facade) Submit(frame int, reports []*motion.Report) error {
	if err := f.sc.Submit(frame, reports); err != nil {
		return err
	}
	return f.collect()
}

// Drain flushes every remaining track and pending report (spec.md §4.6
// DRAINING, §5 "the only graceful shutdown"), then mirrors whatever it
// produced to the sink.
func (f *Facade) Drain() error {
	f.sc.Drain()
	return f.collect()
}

// collect moves everything the Scanner produced this call into the
// facade's own buffers — the single point that drains the Scanner —
// and mirrors it to the sink. ConsumeConfirmed/ConsumeFalse read from
// these buffers rather than the Scanner directly, so a sink-backed run
// and a channel-consuming run see the same records.
func (f *Facade) collect() error {
	confirmed := f.sc.TakeConfirmed()
	f.confirmedBuf = append(f.confirmedBuf, confirmed...)
	alarms := f.sc.TakeFalseAlarms()
	f.falseBuf = append(f.falseBuf, alarms...)

	if f.sink == nil {
		return nil
	}
	if len(confirmed) > 0 {
		byTrack := make(map[int64][]scanner.ConfirmedElement)
		var order []int64
		for _, e := range confirmed {
			if _, ok := byTrack[e.TrackID]; !ok {
				order = append(order, e.TrackID)
			}
			byTrack[e.TrackID] = append(byTrack[e.TrackID], e)
		}
		for _, id := range order {
			if err := f.sink.RecordTrackElements(f.RunID, id, byTrack[id]); err != nil {
				return fmt.Errorf("tracker: recording track %d elements: %w", id, err)
			}
		}
	}
	if len(alarms) > 0 {
		if err := f.sink.RecordFalseAlarms(f.RunID, alarms); err != nil {
			return fmt.Errorf("tracker: recording false alarms: %w", err)
		}
	}
	return nil
}

// ConsumeConfirmed drains and returns every ConfirmedElement produced
// since the last call, as a closed channel ready for range (spec.md
// §4.7 "stream of ConfirmedElements").
func (f *Facade) ConsumeConfirmed() <-chan scanner.ConfirmedElement {
	elems := f.confirmedBuf
	f.confirmedBuf = nil
	out := make(chan scanner.ConfirmedElement, len(elems))
	for _, e := range elems {
		out <- e
	}
	close(out)
	return out
}

// ConsumeFalse drains and returns every FalseAlarm produced since the
// last call, as a closed channel ready for range.
func (f *Facade) ConsumeFalse() <-chan scanner.FalseAlarm {
	alarms := f.falseBuf
	f.falseBuf = nil
	out := make(chan scanner.FalseAlarm, len(alarms))
	for _, a := range alarms {
		out <- a
	}
	close(out)
	return out
}
