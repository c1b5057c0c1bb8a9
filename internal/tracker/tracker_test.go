package tracker

import (
	"testing"

	"github.com/fenwick-labs/cornermht/internal/motion"
	"github.com/fenwick-labs/cornermht/internal/scanner"
)

type fakeSink struct {
	runIDs        []string
	trackElemSets int
	alarmSets     int
}

func (s *fakeSink) RecordRun(runID, modelName string) error {
	s.runIDs = append(s.runIDs, runID)
	return nil
}

func (s *fakeSink) RecordTrackElements(runID string, trackID int64, elems []scanner.ConfirmedElement) error {
	s.trackElemSets++
	return nil
}

func (s *fakeSink) RecordFalseAlarms(runID string, alarms []scanner.FalseAlarm) error {
	s.alarmSets++
	return nil
}

func baseConfig() motion.Config {
	return motion.Config{
		PositionVarianceX: 1, PositionVarianceY: 1,
		ProcessVariance: 0.1, ProbDetect: 0.9, ProbEnd: 4,
		MeanNew: 0.02, MeanFalarms: 0.01,
		MaxGHypos: 4, MaxDepth: 2, MinGHypoRatio: 0.01,
		IntensityThreshold: -1e9, MaxDistance2: 50,
		StateVariance: 100, EndScan: -1,
		AllowNewTracksAfterFirstScan: false,
	}
}

func report(id, frame int, x, y float64) *motion.Report {
	return &motion.Report{ID: id, Frame: frame, X: x, Y: y}
}

func TestFacadeRejectsOutOfOrderFrames(t *testing.T) {
	f, err := New(baseConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := f.Submit(1, []*motion.Report{report(0, 1, 0, 0)}); err != nil {
		t.Fatalf("Submit frame 1: %v", err)
	}
	if err := f.Submit(1, []*motion.Report{report(1, 1, 0, 0)}); err == nil {
		t.Fatal("Submit with a repeated frame: want error, got nil")
	}
}

func TestFacadeDrainEmitsRemainingHistory(t *testing.T) {
	f, err := New(baseConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for frame := 0; frame < 3; frame++ {
		r := report(frame, frame, float64(frame)*2, float64(frame)*2)
		if err := f.Submit(frame, []*motion.Report{r}); err != nil {
			t.Fatalf("Submit frame %d: %v", frame, err)
		}
	}
	if err := f.Drain(); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	var n int
	for range f.ConsumeConfirmed() {
		n++
	}
	if n != 3 {
		t.Fatalf("confirmed elements after drain = %d, want 3", n)
	}
}

func TestFacadeRunIDIsMintedOnce(t *testing.T) {
	f, err := New(baseConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f.RunID == "" {
		t.Fatal("RunID should be non-empty")
	}
	g, err := New(baseConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f.RunID == g.RunID {
		t.Fatal("two facades minted the same RunID")
	}
}

func TestFacadeMirrorsToSink(t *testing.T) {
	sink := &fakeSink{}
	f, err := New(baseConfig(), sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(sink.runIDs) != 1 || sink.runIDs[0] != f.RunID {
		t.Fatalf("sink.runIDs = %v, want [%s]", sink.runIDs, f.RunID)
	}
	for frame := 0; frame < 3; frame++ {
		r := report(frame, frame, float64(frame)*2, float64(frame)*2)
		if err := f.Submit(frame, []*motion.Report{r}); err != nil {
			t.Fatalf("Submit frame %d: %v", frame, err)
		}
	}
	if err := f.Drain(); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if sink.trackElemSets == 0 {
		t.Error("expected at least one RecordTrackElements call")
	}
}
