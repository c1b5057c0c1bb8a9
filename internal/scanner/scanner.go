// Package scanner implements the scan loop (spec.md §4.6, component f):
// ingest a frame's reports, extend every track tree, form and split
// clusters, rank global hypotheses, N-scan prune, and publish confirmed
// track history and false alarms. It is the component that owns the
// scan-by-scan bookkeeping the original tracker kept in process globals
// (spec.md §9's ScanContext).
package scanner

import (
	"fmt"
	"sort"

	"github.com/fenwick-labs/cornermht/internal/cluster"
	"github.com/fenwick-labs/cornermht/internal/hyptree"
	"github.com/fenwick-labs/cornermht/internal/motion"
)

// Phase is one of the four states of the scan loop's state machine
// (spec.md §4.6).
type Phase int

const (
	PhaseFirstScan Phase = iota
	PhaseSteady
	PhaseDraining
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseFirstScan:
		return "FIRST_SCAN"
	case PhaseSteady:
		return "STEADY"
	case PhaseDraining:
		return "DRAINING"
	case PhaseDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// ElementKind distinguishes a measurement-backed ConfirmedElement from a
// skipped one ("M" / "S" in the output track format, spec.md §6).
type ElementKind int

const (
	Measurement ElementKind = iota
	Skip
)

func (k ElementKind) String() string {
	if k == Skip {
		return "S"
	}
	return "M"
}

// ConfirmedElement is one committed (report, state) pair in a track's
// history, emitted once N-scan pruning collapses the ambiguity that
// covered it (spec.md §3).
type ConfirmedElement struct {
	TrackID int64
	Frame   int
	Kind    ElementKind

	RawX, RawY       float64 // the measurement, or 0,0 on a skip
	SmoothX, SmoothY float64 // the smoothed (post-update) state position

	LogLikelihood float64 // the state's cumulative log-likelihood at this node
	ModelName     string
}

// FalseAlarm is a report that no surviving hypothesis ever claimed
// within the N-scan window (spec.md §3).
type FalseAlarm struct {
	RawX, RawY float64
	Frame      int
}

// ErrProtocol is returned by Submit when frames are not submitted in
// strictly increasing order, or when the scanner is no longer accepting
// input (spec.md §4.7, §7).
type ErrProtocol struct {
	Reason string
}

func (e *ErrProtocol) Error() string { return fmt.Sprintf("scanner: protocol error: %s", e.Reason) }

// Scanner is the scan-loop state machine (spec.md §4.6). It owns every
// TrackTree for the run; Clusters are rebuilt transiently each scan from
// the trees' current report-gating compatibility rather than persisted,
// since cluster membership can split or merge from one scan to the next
// (spec.md §4.4 step 5).
type Scanner struct {
	cfg        motion.Config
	model      *motion.Model
	clusterCfg cluster.Config
	modelName  string

	phase Phase

	trees         map[hyptree.TreeID]*hyptree.TrackTree
	nextTreeID    hyptree.TreeID
	nextClusterID int64

	pending map[int]pendingReport // reports awaiting claim or false-alarm emission
	claimed map[int]bool

	haveLastFrame bool
	lastFrame     int

	confirmed   []ConfirmedElement
	falseAlarms []FalseAlarm
}

type pendingReport struct {
	report *motion.Report
	frame  int
}

// ModelName is the constant-velocity model's name stamped on every
// emitted track element (spec.md §9, the original's CONSTVEL_MDL).
const ModelName = "CONSTVEL"

// New creates a Scanner for a single tracking run from cfg.
func New(cfg motion.Config) *Scanner {
	return &Scanner{
		cfg:   cfg,
		model: motion.NewModel(cfg),
		clusterCfg: cluster.Config{
			MaxGHypos:     cfg.MaxGHypos,
			MinGHypoRatio: cfg.MinGHypoRatio,
		},
		modelName: ModelName,
		phase:     PhaseFirstScan,
		trees:     make(map[hyptree.TreeID]*hyptree.TrackTree),
		pending:   make(map[int]pendingReport),
		claimed:   make(map[int]bool),
	}
}

// Phase returns the scanner's current state-machine phase.
func (s *Scanner) Phase() Phase { return s.phase }

// TakeConfirmed drains and returns every ConfirmedElement produced so
// far, in the order they were committed (ascending frame order per
// track, spec.md §4.6 "Ordering guarantees").
func (s *Scanner) TakeConfirmed() []ConfirmedElement {
	out := s.confirmed
	s.confirmed = nil
	return out
}

// TakeFalseAlarms drains and returns every FalseAlarm produced so far.
func (s *Scanner) TakeFalseAlarms() []FalseAlarm {
	out := s.falseAlarms
	s.falseAlarms = nil
	return out
}

// Submit processes one scan's reports (spec.md §4.6). Frames must be
// submitted in strictly increasing order; reports within a frame may
// arrive in any order, but are processed sorted by id for deterministic
// tie-breaking (spec.md §4.5, §8 R1).
func (s *Scanner) Submit(frame int, reports []*motion.Report) error {
	if s.phase == PhaseDraining || s.phase == PhaseDone {
		return &ErrProtocol{Reason: "no further scans accepted once draining"}
	}
	if s.haveLastFrame && frame <= s.lastFrame {
		return &ErrProtocol{Reason: fmt.Sprintf("frame %d submitted out of order after %d", frame, s.lastFrame)}
	}
	s.haveLastFrame = true
	s.lastFrame = frame

	sorted := make([]*motion.Report, len(reports))
	copy(sorted, reports)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, r := range sorted {
		s.pending[r.ID] = pendingReport{report: r, frame: frame}
	}

	switch s.phase {
	case PhaseFirstScan:
		for _, r := range sorted {
			s.beginTrack(frame, r)
			s.claimed[r.ID] = true
		}
		s.phase = PhaseSteady
	case PhaseSteady:
		if err := s.runScan(frame, sorted); err != nil {
			return err
		}
	}

	s.nScanPrune(frame)
	s.resolveFalseAlarms(frame)

	if s.cfg.EndScan >= 0 && frame >= s.cfg.EndScan {
		s.phase = PhaseDraining
	}
	return nil
}

// beginTrack creates a new TrackTree rooted at report r and emits that
// root as the track's first ConfirmedElement (CommitRoot only ever
// emits the child that becomes the new root, never the original one).
func (s *Scanner) beginTrack(frame int, r *motion.Report) hyptree.TreeID {
	id := s.nextTreeID
	s.nextTreeID++
	state := s.model.BeginNewStates(r)
	s.trees[id] = hyptree.New(id, frame, r, state)
	s.emitConfirmed(id, hyptree.CommitResult{Frame: frame, Report: r, State: state})
	return id
}

// runScan performs one STEADY-phase scan: gate every tree's leaves
// against this scan's reports, partition trees into clusters by shared
// gating reports, extend each cluster, and spawn new tracks on whatever
// reports no surviving hypothesis claimed (spec.md §4.4, §9 O1).
func (s *Scanner) runScan(frame int, reports []*motion.Report) error {
	touched := s.gatingTouched(reports)
	components := cluster.Partition(touched)

	for _, treeIDs := range components {
		trees := make([]*hyptree.TrackTree, 0, len(treeIDs))
		for _, id := range treeIDs {
			trees = append(trees, s.trees[id])
		}
		c := clusterOf(s.nextClusterID, trees)
		s.nextClusterID++

		used, err := c.Extend(frame, reports, s.model, s.clusterCfg)
		if err != nil {
			for _, t := range trees {
				forceEnd(t)
			}
			continue
		}
		for id := range used {
			s.claimed[id] = true
		}
	}

	if s.cfg.AllowNewTracksAfterFirstScan {
		for _, r := range reports {
			if !s.claimed[r.ID] {
				s.beginTrack(frame, r)
				s.claimed[r.ID] = true
			}
		}
	}

	for id, t := range s.trees {
		if t.IsEmpty() {
			delete(s.trees, id)
		}
	}
	return nil
}

// gatingTouched returns, for every currently active tree, the ids of
// the reports at least one of its leaves validates against this scan.
// Trees that gate nothing still get an entry (possibly empty) so they
// appear as singleton clusters in Partition (spec.md §4.4 step 1/5).
func (s *Scanner) gatingTouched(reports []*motion.Report) map[hyptree.TreeID][]int {
	touched := make(map[hyptree.TreeID][]int, len(s.trees))
	for id, t := range s.trees {
		var hits []int
		for _, leafID := range t.Leaves() {
			leaf := t.Node(leafID)
			for _, r := range reports {
				if ok, _ := s.model.Validate(leaf.State, r); ok {
					hits = append(hits, r.ID)
				}
			}
		}
		touched[id] = hits
	}
	return touched
}

// nScanPrune commits every tree whose depth exceeds the configured
// window, emitting a ConfirmedElement per committed node (spec.md §4.3,
// §4.6 STEADY). If ambiguity somehow survives to depth maxDepth+1 (more
// than one root child), the highest cumulative-log-likelihood child is
// kept and the rest pruned, preserving invariant P3.
func (s *Scanner) nScanPrune(frame int) {
	for id, t := range s.trees {
		for t.Depth() > s.cfg.MaxDepth {
			root := t.Node(t.Root())
			if len(root.Children) > 1 {
				resolveRootAmbiguity(t, root)
			}
			result, ok := t.CommitRoot()
			if !ok {
				break
			}
			s.emitConfirmed(id, result)
		}
		if t.IsEmpty() {
			delete(s.trees, id)
		}
	}
}

// resolveRootAmbiguity forces a decision at the tree's root by keeping
// only the child whose subtree contains the highest cumulative
// log-likelihood leaf, pruning every other branch.
func resolveRootAmbiguity(t *hyptree.TrackTree, root *hyptree.Node) {
	var bestChild hyptree.NodeID
	bestLL := negInf
	for _, child := range root.Children {
		for _, leafID := range t.LeavesUnder(child) {
			if ll := t.Node(leafID).CumulativeLL; ll > bestLL {
				bestLL = ll
				bestChild = child
			}
		}
	}
	for _, child := range root.Children {
		if child == bestChild {
			continue
		}
		for _, leafID := range t.LeavesUnder(child) {
			_ = t.Prune(leafID)
		}
	}
}

const negInf = -1e300

func (s *Scanner) emitConfirmed(treeID hyptree.TreeID, result hyptree.CommitResult) {
	kind := Skip
	var rawX, rawY float64
	if result.Report != nil {
		kind = Measurement
		rawX, rawY = result.Report.X, result.Report.Y
	}
	s.confirmed = append(s.confirmed, ConfirmedElement{
		TrackID:       int64(treeID),
		Frame:         result.Frame,
		Kind:          kind,
		RawX:          rawX,
		RawY:          rawY,
		SmoothX:       result.State.Mean[0],
		SmoothY:       result.State.Mean[2],
		LogLikelihood: result.State.LogLikelihood,
		ModelName:     s.modelName,
	})
}

// resolveFalseAlarms emits a FalseAlarm for every pending report whose
// N-scan window has closed without being claimed (spec.md §4.6
// "Ordering guarantees").
func (s *Scanner) resolveFalseAlarms(frame int) {
	var closed []int
	for id, p := range s.pending {
		if frame-p.frame < s.cfg.MaxDepth {
			continue
		}
		closed = append(closed, id)
	}
	sort.Ints(closed)
	for _, id := range closed {
		p := s.pending[id]
		if !s.claimed[id] {
			s.falseAlarms = append(s.falseAlarms, FalseAlarm{RawX: p.report.X, RawY: p.report.Y, Frame: p.frame})
		}
		delete(s.pending, id)
	}
}

// Drain transitions the scanner through DRAINING to DONE: every
// remaining tree is collapsed onto its single best-scoring branch and
// fully committed, and every still-pending report is published as a
// FalseAlarm (spec.md §4.6 DRAINING, §5 "the only graceful shutdown").
func (s *Scanner) Drain() {
	s.phase = PhaseDraining

	ids := make([]hyptree.TreeID, 0, len(s.trees))
	for id := range s.trees {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		t := s.trees[id]
		collapseToBest(t)
		for {
			result, ok := t.CommitRoot()
			if !ok {
				break
			}
			s.emitConfirmed(id, result)
		}
		delete(s.trees, id)
	}

	var remaining []int
	for id := range s.pending {
		remaining = append(remaining, id)
	}
	sort.Ints(remaining)
	for _, id := range remaining {
		p := s.pending[id]
		if !s.claimed[id] {
			s.falseAlarms = append(s.falseAlarms, FalseAlarm{RawX: p.report.X, RawY: p.report.Y, Frame: p.frame})
		}
		delete(s.pending, id)
	}

	s.phase = PhaseDone
}

// collapseToBest prunes every leaf but the one with the highest
// cumulative log-likelihood, leaving a single linear chain from root to
// that leaf so CommitRoot can walk the whole remaining history.
func collapseToBest(t *hyptree.TrackTree) {
	leaves := t.Leaves()
	if len(leaves) <= 1 {
		return
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i] < leaves[j] })
	best := leaves[0]
	bestLL := t.Node(best).CumulativeLL
	for _, id := range leaves[1:] {
		if ll := t.Node(id).CumulativeLL; ll > bestLL {
			bestLL = ll
			best = id
		}
	}
	for _, id := range leaves {
		if id != best {
			_ = t.Prune(id)
		}
	}
}

// forceEnd discards every live hypothesis in t, repeatedly pruning the
// current leaf set until the tree is empty (spec.md §4.5/§7: an
// unsolvable cluster's trees are forcibly ended).
func forceEnd(t *hyptree.TrackTree) {
	for !t.IsEmpty() {
		for _, id := range t.Leaves() {
			_ = t.Prune(id)
		}
	}
}

func clusterOf(id int64, trees []*hyptree.TrackTree) *cluster.Cluster {
	return cluster.New(id, trees...)
}
