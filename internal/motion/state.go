package motion

import "github.com/fenwick-labs/cornermht/internal/linalg"

// State is a per-hypothesis Kalman estimate: the constant-velocity mean
// (x, xdot, y, ydot), its covariance, bookkeeping for gating and scoring,
// and the patch last associated with the track.
type State struct {
	Mean [4]float64 // x, xdot, y, ydot
	Cov  *linalg.Matrix

	NumSkipped    int
	LogLikelihood float64
	Patch         Patch

	setup *stateSetup
}

// stateSetup holds the parts of the Kalman computation that do not depend
// on a candidate report: the predicted mean, innovation-covariance
// inverse, gain, next covariance and the scalar log-normalising constant.
// It is computed lazily on first gating attempt and discarded along with
// the State when its owning node is pruned — there is nothing to free
// explicitly since the Go garbage collector reclaims it.
type stateSetup struct {
	predMean    [4]float64
	sinv        *linalg.Matrix // 2x2, (H P1 H' + R)^-1
	gain        *linalg.Matrix // 4x2, P1 H' Sinv
	nextCov     *linalg.Matrix // 4x4
	logNormCoef float64
}

// LogNormFactor is the constant term in the Kalman log-likelihood
// coefficient, logNormCoef = -(LogNormFactor + ln(det S)/2) (spec.md §9
// O3: named rather than hard-coded).
const LogNormFactor = 1.5963597

// Epsilon guards against log(0) in the end/continue likelihood formulas
// (spec.md §9 O3).
const Epsilon = 1e-14

func newState(mean [4]float64, cov *linalg.Matrix, numSkipped int, logLik float64, patch Patch) *State {
	return &State{Mean: mean, Cov: cov, NumSkipped: numSkipped, LogLikelihood: logLik, Patch: patch}
}

// Clone returns an independent copy of s, safe to mutate without aliasing
// the original's covariance matrix.
func (s *State) Clone() *State {
	return &State{
		Mean:          s.Mean,
		Cov:           s.Cov.Clone(),
		NumSkipped:    s.NumSkipped,
		LogLikelihood: s.LogLikelihood,
		Patch:         s.Patch,
	}
}

// IsSymmetricPD reports whether the state's covariance is numerically
// symmetric and positive-definite (spec.md §8 invariant P1).
func (s *State) IsSymmetricPD() bool {
	return s.Cov.IsSymmetric(1e-6) && s.Cov.IsPositiveDefinite()
}
