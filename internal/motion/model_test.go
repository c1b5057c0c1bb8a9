package motion

import (
	"math"
	"testing"
)

func testConfig() Config {
	return Config{
		PositionVarianceX:  1,
		PositionVarianceY:  1,
		ProcessVariance:    0.1,
		ProbDetect:         0.9,
		ProbEnd:            3,
		MeanNew:            0.05,
		StateVariance:      10,
		IntensityThreshold: -1e9, // disabled for motion-only tests
		MaxDistance2:       9.21, // chi-square 2 dof, p=0.01
		PatchMetric:        CorrCoeff,
	}
}

func TestBeginNewStatesLogLikelihood(t *testing.T) {
	m := NewModel(testConfig())
	r := &Report{ID: 1, Frame: 0, X: 5, Y: 7}
	s := m.BeginNewStates(r)
	if s.Mean[0] != 5 || s.Mean[2] != 7 {
		t.Fatalf("unexpected mean %v", s.Mean)
	}
	if want := math.Log(0.05); math.Abs(s.LogLikelihood-want) > 1e-12 {
		t.Errorf("LogLikelihood = %v, want %v", s.LogLikelihood, want)
	}
}

func TestValidateAcceptsNearbyReport(t *testing.T) {
	m := NewModel(testConfig())
	s := m.BeginNewStates(&Report{X: 0, Y: 0})
	ok, dist2 := m.Validate(s, &Report{X: 0.5, Y: 0.5})
	if !ok {
		t.Fatalf("expected acceptance, dist2=%v", dist2)
	}
}

func TestValidateRejectsFarReport(t *testing.T) {
	m := NewModel(testConfig())
	s := m.BeginNewStates(&Report{X: 0, Y: 0})
	ok, _ := m.Validate(s, &Report{X: 1000, Y: 1000})
	if ok {
		t.Fatal("expected rejection for far report")
	}
}

func TestMakeStateResetsNumSkipped(t *testing.T) {
	m := NewModel(testConfig())
	s := m.BeginNewStates(&Report{X: 0, Y: 0})
	skipped := m.MakeSkipState(s)
	if skipped.NumSkipped != 1 {
		t.Fatalf("NumSkipped = %d, want 1", skipped.NumSkipped)
	}
	matched := m.MakeState(s, &Report{X: 1, Y: 1})
	if matched.NumSkipped != 0 {
		t.Fatalf("NumSkipped = %d, want 0", matched.NumSkipped)
	}
	if !matched.IsSymmetricPD() {
		t.Error("updated covariance should remain symmetric positive-definite")
	}
}

func TestLogLikelihoodEndContinueComplementary(t *testing.T) {
	m := NewModel(testConfig())
	for _, n := range []int{0, 1, 5} {
		end := m.LogLikelihoodEnd(n)
		cont := m.LogLikelihoodContinue(n)
		sum := math.Exp(end) + math.Exp(cont)
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("numSkipped=%d: end+continue probabilities = %v, want 1", n, sum)
		}
	}
}

func TestLogLikelihoodDetectSkipComplementary(t *testing.T) {
	m := NewModel(testConfig())
	sum := math.Exp(m.LogLikelihoodDetect()) + math.Exp(m.LogLikelihoodSkip())
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("detect+skip probabilities = %v, want 1", sum)
	}
}

func TestPatchScoreIdenticalIsMaximal(t *testing.T) {
	m := NewModel(testConfig())
	var p Patch
	for i := range p {
		p[i] = uint16(i)
	}
	if got := m.PatchScore(p, p); got < 0.999 {
		t.Errorf("identical patches corrCoeff = %v, want ~1", got)
	}

	cfg := testConfig()
	cfg.PatchMetric = SumSquareDiff
	m2 := NewModel(cfg)
	if got := m2.PatchScore(p, p); got != 1 {
		t.Errorf("identical patches SSD score = %v, want 1", got)
	}
}

func TestPatchScoreToleratesOnePixelShift(t *testing.T) {
	m := NewModel(testConfig())
	var a, b Patch
	for row := 0; row < PatchSize; row++ {
		for col := 0; col < PatchSize; col++ {
			a[row*PatchSize+col] = uint16(row*10 + col)
		}
	}
	// b is a shifted by (dy=1, dx=0): b[row][col] = a[row-1][col], clamped.
	for row := 0; row < PatchSize; row++ {
		for col := 0; col < PatchSize; col++ {
			srcRow := row - 1
			if srcRow < 0 {
				srcRow = 0
			}
			b[row*PatchSize+col] = a[srcRow*PatchSize+col]
		}
	}
	if got := m.PatchScore(a, b); got < 0.9 {
		t.Errorf("shifted patch score = %v, want high score for tolerated 1px shift", got)
	}
}
