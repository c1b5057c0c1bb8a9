// Package cluster implements the MHT cluster (called "group" in the
// original tracker): a set of track trees whose current leaves compete
// for the same scan's reports, extended scan-by-scan via the
// AssignmentSolver's K-best global hypotheses.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/fenwick-labs/cornermht/internal/assign"
	"github.com/fenwick-labs/cornermht/internal/hyptree"
	"github.com/fenwick-labs/cornermht/internal/motion"
)

// ErrUnsolvable is returned by Extend when the assignment matrix admits
// no viable global hypothesis at all (spec.md §4.5/§7): the caller must
// forcibly end every tree in the cluster.
var ErrUnsolvable = errors.New("cluster: no viable global hypothesis")

// Config carries the subset of parameters Extend needs from the
// tracker's overall Config.
type Config struct {
	MaxGHypos     int
	MinGHypoRatio float64
}

// Cluster is a maximal set of TrackTrees whose leaves currently compete
// for a shared pool of reports. Clusters hold non-owning references to
// their trees — the Scanner is the trees' sole owner.
type Cluster struct {
	ID    int64
	Trees map[hyptree.TreeID]*hyptree.TrackTree

	// lastScore is the running log-likelihood of the cluster's best
	// retained global hypothesis, kept for invariant P4 bookkeeping.
	lastScore float64
}

// New creates a cluster over the given trees.
func New(id int64, trees ...*hyptree.TrackTree) *Cluster {
	c := &Cluster{ID: id, Trees: make(map[hyptree.TreeID]*hyptree.TrackTree, len(trees))}
	for _, t := range trees {
		c.Trees[t.ID] = t
	}
	return c
}

// Score returns the log-likelihood of the cluster's best retained
// global hypothesis as of the last successful Extend.
func (c *Cluster) Score() float64 { return c.lastScore }

// outcomeKey uniquely identifies a candidate continuation of a leaf:
// either "skip" or the id of the matched report.
type outcomeKey struct {
	leaf   hyptree.NodeID
	report int
	isSkip bool
}

// leafRow is one row of the assignment matrix: a single current leaf of
// one of the cluster's trees.
type leafRow struct {
	treeID hyptree.TreeID
	leafID hyptree.NodeID
	state  *motion.State
}

// Extend runs one scan of cluster maintenance (spec.md §4.4): gate
// every leaf against every report, solve for the K best global
// hypotheses, retain those within minGHypoRatio of the best, and
// extend every tree by the leaf-continuations that participate in at
// least one retained hypothesis. It returns the set of report ids
// claimed by at least one retained hypothesis.
func (c *Cluster) Extend(frame int, reports []*motion.Report, model *motion.Model, cfg Config) (usedReports map[int]bool, err error) {
	var rows []leafRow
	for _, treeID := range sortedTreeIDs(c.Trees) {
		tree := c.Trees[treeID]
		leaves := tree.Leaves()
		sort.Slice(leaves, func(i, j int) bool { return leaves[i] < leaves[j] })
		for _, leafID := range leaves {
			rows = append(rows, leafRow{treeID: treeID, leafID: leafID, state: tree.Node(leafID).State})
		}
	}

	sortedReports := make([]*motion.Report, len(reports))
	copy(sortedReports, reports)
	sort.Slice(sortedReports, func(i, j int) bool { return sortedReports[i].ID < sortedReports[j].ID })

	m := assign.NewMatrix(len(rows), len(sortedReports))
	skipBase := make([]float64, len(rows))
	for i, r := range rows {
		skipBase[i] = model.SkipLogLikelihood(r.state)
		for j, rep := range sortedReports {
			ok, _ := model.Validate(r.state, rep)
			if !ok {
				continue
			}
			m.Set(i, j, model.MatchLogLikelihood(r.state, rep)-skipBase[i])
		}
	}

	requested := cfg.MaxGHypos
	if requested < 1 {
		requested = 1
	}
	var retained []assign.Assignment
	for attempt := 0; attempt < 4; attempt++ {
		k := requested * (attempt + 3) // over-request to survive same-tree filtering
		if k > 200 {
			k = 200
		}
		candidates := assign.KBest(m, k)
		retained = filterSameTreeExclusivity(rows, candidates)
		if len(retained) >= requested || len(candidates) < k {
			break
		}
	}
	if len(retained) == 0 {
		return nil, fmt.Errorf("%w: cluster %d", ErrUnsolvable, c.ID)
	}

	// Absolute totals, including each row's constant skip baseline.
	baseSum := 0.0
	for _, b := range skipBase {
		baseSum += b
	}
	sort.SliceStable(retained, func(i, j int) bool { return retained[i].TotalScore > retained[j].TotalScore })

	best := retained[0].TotalScore
	threshold := best + math.Log(math.Max(cfg.MinGHypoRatio, 1e-300))
	var kept []assign.Assignment
	for _, a := range retained {
		if len(kept) >= cfg.MaxGHypos {
			break
		}
		if a.TotalScore < threshold {
			break
		}
		kept = append(kept, a)
	}
	if len(kept) == 0 {
		kept = retained[:1]
	}
	c.lastScore = baseSum + kept[0].TotalScore

	usedReports = make(map[int]bool)
	extensions := make(map[hyptree.NodeID]map[outcomeKey]bool)
	for _, hyp := range kept {
		for i, col := range hyp.Row {
			leaf := rows[i].leafID
			if extensions[leaf] == nil {
				extensions[leaf] = make(map[outcomeKey]bool)
			}
			if col < 0 {
				extensions[leaf][outcomeKey{leaf: leaf, isSkip: true}] = true
				continue
			}
			rep := sortedReports[col]
			extensions[leaf][outcomeKey{leaf: leaf, report: rep.ID}] = true
			usedReports[rep.ID] = true
		}
	}

	reportByID := make(map[int]*motion.Report, len(sortedReports))
	for _, r := range sortedReports {
		reportByID[r.ID] = r
	}

	for _, r := range rows {
		tree := c.Trees[r.treeID]
		outcomes := extensions[r.leafID]
		for key := range outcomes {
			if key.isSkip {
				child := model.MakeSkipState(r.state)
				if _, err := tree.AppendChild(r.leafID, frame, nil, child, model.SkipLogLikelihood(r.state)); err != nil {
					return nil, err
				}
				continue
			}
			rep := reportByID[key.report]
			child := model.MakeState(r.state, rep)
			edge := model.MatchLogLikelihood(r.state, rep)
			if _, err := tree.AppendChild(r.leafID, frame, rep, child, edge); err != nil {
				return nil, err
			}
		}
	}

	return usedReports, nil
}

// filterSameTreeExclusivity drops assignments where two rows belonging
// to the same tree are both matched to a report — spec.md's "at most
// one leaf per tree" requirement, read narrowly as a constraint on
// claimed reports: two leaves of the same tree may both
// independently skip within one retained hypothesis, since that simply
// means the tree carries two live unresolved branches.
func filterSameTreeExclusivity(rows []leafRow, candidates []assign.Assignment) []assign.Assignment {
	var out []assign.Assignment
	for _, a := range candidates {
		seen := make(map[hyptree.TreeID]bool)
		ok := true
		for i, col := range a.Row {
			if col < 0 {
				continue
			}
			if seen[rows[i].treeID] {
				ok = false
				break
			}
			seen[rows[i].treeID] = true
		}
		if ok {
			out = append(out, a)
		}
	}
	return out
}

func sortedTreeIDs(m map[hyptree.TreeID]*hyptree.TrackTree) []hyptree.TreeID {
	ids := make([]hyptree.TreeID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
