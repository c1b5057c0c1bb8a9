package motion

import (
	"math"

	"github.com/fenwick-labs/cornermht/internal/linalg"
)

// Model is the constant-velocity motion model shared by every track in a
// tracking run. It holds the time-invariant system matrices (state
// transition F, process noise Q, measurement matrix H, measurement noise
// R) built once from Config, plus the scoring parameters used to weight
// hypothesis edges.
type Model struct {
	cfg Config

	f *linalg.Matrix // 4x4 state transition
	q *linalg.Matrix // 4x4 process noise
	h *linalg.Matrix // 2x4 measurement matrix
	r *linalg.Matrix // 2x2 measurement noise
}

// NewModel builds a Model from cfg. The system matrices depend only on
// cfg and a single unit time step between scans, so they are computed
// once and reused by every State.
func NewModel(cfg Config) *Model {
	f := linalg.New(4, 4, []float64{
		1, 1, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 1,
		0, 0, 0, 1,
	})
	// Process covariance per spatial axis is (ds^3/3, ds^2/2; ds^2/2, ds)
	// with ds = 1, block-diagonal across the x and y axes.
	q := linalg.New(4, 4, []float64{
		1.0 / 3, 0.5, 0, 0,
		0.5, 1, 0, 0,
		0, 0, 1.0 / 3, 0.5,
		0, 0, 0.5, 1,
	}).Scale(cfg.ProcessVariance)
	h := linalg.New(2, 4, []float64{
		1, 0, 0, 0,
		0, 0, 1, 0,
	})
	r := linalg.Diag([]float64{cfg.PositionVarianceX, cfg.PositionVarianceY})
	return &Model{cfg: cfg, f: f, q: q, h: h, r: r}
}

// BeginNewStates returns a fresh single-report hypothesis: position from
// the report, zero velocity, diagonal covariance seeded from
// Config.StateVariance, and starting log-likelihood log(MeanNew).
func (m *Model) BeginNewStates(r *Report) *State {
	mean := [4]float64{r.X, 0, r.Y, 0}
	cov := linalg.Diag([]float64{m.cfg.StateVariance, m.cfg.StateVariance, m.cfg.StateVariance, m.cfg.StateVariance})
	return newState(mean, cov, 0, m.LogLikelihoodNew(), r.Patch)
}

// setup computes and caches s's lazy Kalman quantities: predicted mean,
// innovation covariance inverse, gain, post-update covariance and the
// log-normalising constant (the predicted covariance is computed on the
// way but not cached). It is idempotent; callers that only need the
// predicted mean and gating matrices call it directly, Validate and
// MakeState both rely on it having been called first.
func (m *Model) setup(s *State) *stateSetup {
	if s.setup != nil {
		return s.setup
	}

	meanVec := linalg.New(4, 1, []float64{s.Mean[0], s.Mean[1], s.Mean[2], s.Mean[3]})
	predVec := m.f.Mul(meanVec)
	predMean := [4]float64{predVec.At(0, 0), predVec.At(1, 0), predVec.At(2, 0), predVec.At(3, 0)}

	p1 := m.f.Mul(s.Cov).Mul(m.f.Trans()).Add(m.q)
	sCov := m.h.Mul(p1).Mul(m.h.Trans()).Add(m.r)

	detS, err := sCov.Det()
	logNormCoef := math.Inf(-1)
	var sinv, gain, nextCov *linalg.Matrix
	if err == nil && detS > 0 {
		if inv, ierr := sCov.Inv(); ierr == nil {
			sinv = inv
			gain = p1.Mul(m.h.Trans()).Mul(sinv)
			nextCov = p1.Sub(gain.Mul(sCov).Mul(gain.Trans()))
			logNormCoef = -(LogNormFactor + math.Log(detS)/2)
		}
	}

	setup := &stateSetup{
		predMean:    predMean,
		sinv:        sinv,
		gain:        gain,
		nextCov:     nextCov,
		logNormCoef: logNormCoef,
	}
	s.setup = setup
	return setup
}

// Validate reports whether report r gates against state s: both the
// squared-Mahalanobis distance of its position against the predicted
// measurement and the intensity patch score must clear their thresholds
// (spec.md §4.2/§9). dist2 is returned regardless of acceptance so
// callers can use it for scoring or diagnostics.
func (m *Model) Validate(s *State, r *Report) (accepted bool, dist2 float64) {
	setup := m.setup(s)
	if setup.sinv == nil {
		return false, math.Inf(+1)
	}

	dx := r.X - setup.predMean[0]
	dy := r.Y - setup.predMean[2]
	dist2 = dx*dx*setup.sinv.At(0, 0) + 2*dx*dy*setup.sinv.At(0, 1) + dy*dy*setup.sinv.At(1, 1)
	if dist2 > m.cfg.MaxDistance() {
		return false, dist2
	}

	if m.PatchScore(s.Patch, r.Patch) < m.cfg.IntensityThreshold {
		return false, dist2
	}
	return true, dist2
}

// MatchLogLikelihood returns the edge log-likelihood of associating
// report r with parent state s — the Kalman measurement score alone,
// logNormCoef - d^2/2, with no detect term (spec.md §4.2 "On
// acceptance ... log-lik increment = logNormCoef − d²/2"; matches the
// original's getNextState(), motionModel.c:543-544) — without
// constructing the resulting State. Cluster uses this to populate the
// AssignmentSolver's score matrix; MakeState uses it to build the
// accepted child.
func (m *Model) MatchLogLikelihood(s *State, r *Report) float64 {
	setup := m.setup(s)
	dx := r.X - setup.predMean[0]
	dy := r.Y - setup.predMean[2]
	dist2 := dx*dx*setup.sinv.At(0, 0) + 2*dx*dy*setup.sinv.At(0, 1) + dy*dy*setup.sinv.At(1, 1)
	return setup.logNormCoef - dist2/2
}

// MakeState returns the hypothesis formed by associating report r with
// parent state s: the Kalman-updated mean and post-update covariance,
// numSkipped reset to zero, and the running log-likelihood extended by
// the Kalman measurement score. Callers must have already confirmed
// Validate(s, r) before calling MakeState.
func (m *Model) MakeState(s *State, r *Report) *State {
	setup := m.setup(s)

	dx := r.X - setup.predMean[0]
	dy := r.Y - setup.predMean[2]
	innov := linalg.New(2, 1, []float64{dx, dy})
	delta := setup.gain.Mul(innov)

	mean := [4]float64{
		setup.predMean[0] + delta.At(0, 0),
		setup.predMean[1] + delta.At(1, 0),
		setup.predMean[2] + delta.At(2, 0),
		setup.predMean[3] + delta.At(3, 0),
	}

	logLik := s.LogLikelihood + m.MatchLogLikelihood(s, r)

	return newState(mean, setup.nextCov.Clone(), 0, logLik, r.Patch)
}

// SkipLogLikelihood returns the edge log-likelihood of skipping state s
// this scan: logLikelihoodSkip() plus logLikelihoodContinue(numSkipped),
// the baseline every candidate continuation is scored relative to in
// Cluster's assignment matrix.
func (m *Model) SkipLogLikelihood(s *State) float64 {
	return m.LogLikelihoodSkip() + m.LogLikelihoodContinue(s.NumSkipped)
}

// MakeSkipState returns the hypothesis formed by skipping an observation
// for state s at this scan: the predicted (not updated) mean and
// covariance, numSkipped incremented, and the running log-likelihood
// extended by LogLikelihoodSkip.
func (m *Model) MakeSkipState(s *State) *State {
	setup := m.setup(s)
	cov := m.f.Mul(s.Cov).Mul(m.f.Trans()).Add(m.q)
	logLik := s.LogLikelihood + m.LogLikelihoodSkip()
	return newState(setup.predMean, cov, s.NumSkipped+1, logLik, s.Patch)
}

// LogLikelihoodNew returns the log-probability of starting a new track,
// log(MeanNew) (original param.h's meanNew fed directly as startProb).
func (m *Model) LogLikelihoodNew() float64 {
	return math.Log(m.cfg.MeanNew)
}

// LogLikelihoodDetect returns the constant per-scan log-probability of a
// true detection, log(ProbDetect).
func (m *Model) LogLikelihoodDetect() float64 {
	return math.Log(m.cfg.ProbDetect)
}

// LogLikelihoodSkip returns the constant per-scan log-probability of a
// missed detection, log(1-ProbDetect).
func (m *Model) LogLikelihoodSkip() float64 {
	return math.Log(1 - m.cfg.ProbDetect)
}

// LogLikelihoodEnd returns the log-probability of a track ending after
// numSkipped consecutive misses, log(1-exp(-m/ProbEnd)) with
// m = numSkipped+1. ProbEnd is used as the lambda_x decay constant per
// original_source/trackCorners.c's CONSTVEL_MDL construction, not as a
// literal probability.
func (m *Model) LogLikelihoodEnd(numSkipped int) float64 {
	x := float64(numSkipped+1) / m.cfg.ProbEnd
	p := 1 - math.Exp(-x)
	if p < Epsilon {
		p = Epsilon
	}
	return math.Log(p)
}

// LogLikelihoodContinue returns the log-probability of a track
// continuing past numSkipped consecutive misses, the complement of
// LogLikelihoodEnd: -m/ProbEnd directly, since exp(-m/lambda) needs no
// further log.
func (m *Model) LogLikelihoodContinue(numSkipped int) float64 {
	x := float64(numSkipped+1) / m.cfg.ProbEnd
	return -x
}

// PatchScore scores how well two patches match under the configured
// PatchMetric, maximised over the nine 3x3 sub-window alignments of a
// against the centre 3x3 window of b (spec.md §9: the tracker never
// knows the true sub-pixel offset between consecutive detections, so it
// searches the one-pixel neighbourhood). Higher is always a better match.
func (m *Model) PatchScore(a, b Patch) float64 {
	switch m.cfg.PatchMetric {
	case SumSquareDiff:
		return 1 / (1 + minSSD(a, b))
	default:
		return maxCorrCoeff(a, b)
	}
}

// center3x3 extracts the centre 3x3 window of a 5x5 patch.
func center3x3(p Patch) [9]float64 {
	var out [9]float64
	k := 0
	for row := 1; row <= 3; row++ {
		for col := 1; col <= 3; col++ {
			out[k] = float64(p[row*PatchSize+col])
			k++
		}
	}
	return out
}

// offsetWindow3x3 extracts the 3x3 window of a 5x5 patch whose top-left
// corner sits at (1+dy, 1+dx), i.e. the centre window shifted by
// (dy, dx) in {-1, 0, 1}.
func offsetWindow3x3(p Patch, dy, dx int) [9]float64 {
	var out [9]float64
	k := 0
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			out[k] = float64(p[(row+1+dy)*PatchSize+(col+1+dx)])
			k++
		}
	}
	return out
}

func maxCorrCoeff(a, b Patch) float64 {
	center := center3x3(b)
	best := math.Inf(-1)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			win := offsetWindow3x3(a, dy, dx)
			if c := corrCoeff(win, center); c > best {
				best = c
			}
		}
	}
	return best
}

func minSSD(a, b Patch) float64 {
	center := center3x3(b)
	best := math.Inf(+1)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			win := offsetWindow3x3(a, dy, dx)
			if s := sumSquareDiff(win, center); s < best {
				best = s
			}
		}
	}
	return best
}

func corrCoeff(x, y [9]float64) float64 {
	var meanX, meanY float64
	for i := range x {
		meanX += x[i]
		meanY += y[i]
	}
	meanX /= float64(len(x))
	meanY /= float64(len(y))

	var num, denX, denY float64
	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		num += dx * dy
		denX += dx * dx
		denY += dy * dy
	}
	den := math.Sqrt(denX * denY)
	if den < Epsilon {
		if num == 0 {
			return 1
		}
		return 0
	}
	return num / den
}

func sumSquareDiff(x, y [9]float64) float64 {
	var sum float64
	for i := range x {
		d := x[i] - y[i]
		sum += d * d
	}
	return sum
}
