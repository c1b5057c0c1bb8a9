// Package motion implements the constant-velocity Kalman motion model
// shared by every track: state prediction, validation gating (Mahalanobis
// distance plus patch cross-correlation) and the log-likelihood scoring
// used to weight hypothesis edges.
package motion

// PatchSize is the side length of the intensity window captured around
// each corner.
const PatchSize = 5

// Patch is a 5x5 intensity window, row-major, centred on a corner.
type Patch [PatchSize * PatchSize]uint16

// Report is a single corner observation in one frame. It is immutable
// after construction; the Scanner's per-scan report pool owns the backing
// slice and hypothesis nodes hold references into it.
type Report struct {
	ID    int // stable id within the owning scan's report pool
	Frame int
	X, Y  float64
	Patch Patch

	// FalarmLogLikelihood is precomputed by the caller (the corner-detector
	// front end, out of scope here) and carried through to false-alarm
	// bookkeeping.
	FalarmLogLikelihood float64
}
