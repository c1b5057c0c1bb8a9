// Package assign solves the cluster assignment problem: given a sparse
// score matrix over (leaf-continuation option x report), find the best
// global hypothesis and its K-1 best disjoint alternatives. The
// reference solver is Murty's K-best algorithm layered atop a Hungarian
// minimum-cost assignment on the negated log-likelihood matrix, adapted
// from the Kuhn-Munkres implementation the corner tracker's sibling
// object tracker uses for cluster-to-track matching.
package assign

import "math"

// forbiddenCost stands in for an unreachable cell: a leaf-continuation
// option that did not gate against a given report. It plays the same
// role as hungarianlnf in the nearest-neighbour tracker this solver was
// adapted from.
const forbiddenCost = 1e18

// NotForbidden reports whether a score matrix cell represents a viable
// pairing (as opposed to one the caller marked non-viable with
// math.Inf(-1) or an equivalently large negative score).
func NotForbidden(score float64) bool {
	return score > -forbiddenCost/2
}

// Matrix is a dense score matrix: rows are leaf-continuation options,
// columns are reports. Score[i][j] is a log-likelihood; a forbidden
// (non-viable) cell holds math.Inf(-1). Callers are expected to have
// already sorted rows by (tree id, leaf id) and columns by report id —
// the solver's deterministic, index-order tie-breaking then realises
// spec's required (tree id, leaf id, report id) tie-break without the
// solver needing to know those identities itself.
type Matrix struct {
	Rows, Cols int
	Score      [][]float64
}

// NewMatrix allocates a Rows x Cols matrix with every cell forbidden.
func NewMatrix(rows, cols int) *Matrix {
	m := &Matrix{Rows: rows, Cols: cols, Score: make([][]float64, rows)}
	for i := range m.Score {
		m.Score[i] = make([]float64, cols)
		for j := range m.Score[i] {
			m.Score[i][j] = math.Inf(-1)
		}
	}
	return m
}

// Set records the score for pairing row i with column j.
func (m *Matrix) Set(i, j int, score float64) { m.Score[i][j] = score }

// Assignment is one global hypothesis: Row[i] = column assigned to row
// i, or -1 if row i is unassigned (its leaf-option contributes no
// report this scan). TotalScore is the sum of log-likelihoods of the
// assigned cells only.
type Assignment struct {
	Row        []int
	TotalScore float64
}

// equalAssignment reports whether two assignments select the same set
// of (row, col) pairs, used to deduplicate Murty partitions that
// converge on the same solution from different branches.
func equalAssignment(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
