// Package hyptree implements the per-track hypothesis tree: an
// arena-allocated replacement for the intrusive linked-list/back-pointer
// topology of the original tracker. Nodes are addressed by stable integer
// handles rather than pointers, so pruning a subtree is just marking
// handles free — there are no cycles to break and no back-pointers to
// repair.
package hyptree

import (
	"fmt"

	"github.com/fenwick-labs/cornermht/internal/motion"
)

// NodeID is a stable handle into a TrackTree's node arena. The zero value
// is never a valid id; ids are assigned starting from 1 so a NodeID can
// double as a "no node" sentinel when zero.
type NodeID int32

// TreeID identifies a TrackTree within a Scanner run. Tree ids are
// assigned once, monotonically increasing, and never reused.
type TreeID int64

// noParent marks the root node's Parent field.
const noParent NodeID = 0

//
// 1) Node
//

// Node is one hypothesis in a track's tree: the edge that reached it
// (a consumed Report, or nil for a skip), the State produced by that
// edge, and the tree topology around it.
type Node struct {
	ID       NodeID
	Parent   NodeID
	Children []NodeID

	Frame         int
	Report        *motion.Report // nil on a skip edge
	State         *motion.State
	EdgeLogLik    float64
	CumulativeLL  float64 // State.LogLikelihood, cached for quick inspection
}

// IsLeaf reports whether n currently has no children.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// IsSkip reports whether n was reached by a skip edge rather than a
// measurement.
func (n *Node) IsSkip() bool { return n.Report == nil }

//
// 2) TrackTree
//

// TrackTree is one track's hypothesis tree: a single root plus however
// many live leaves the cluster has not yet pruned. Nodes are owned
// exclusively by the tree that allocated them; a TrackTree never
// references another tree's nodes.
type TrackTree struct {
	ID   TreeID
	arena []*Node // indexed by NodeID-1; nil entries are freed slots
	free  []NodeID
	root  NodeID
	leaves map[NodeID]bool
	depth  int
}

// New creates a TrackTree rooted at a single node carrying the given
// report and initial state (spec.md §4.6 FIRST_SCAN: one tree per
// report).
func New(id TreeID, frame int, report *motion.Report, state *motion.State) *TrackTree {
	t := &TrackTree{
		ID:     id,
		leaves: make(map[NodeID]bool),
	}
	root := t.alloc()
	root.Parent = noParent
	root.Frame = frame
	root.Report = report
	root.State = state
	root.CumulativeLL = state.LogLikelihood
	t.root = root.ID
	t.leaves[root.ID] = true
	return t
}

func (t *TrackTree) alloc() *Node {
	var n *Node
	if len(t.free) > 0 {
		id := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		n = &Node{ID: id}
		t.arena[id-1] = n
		return n
	}
	id := NodeID(len(t.arena) + 1)
	n = &Node{ID: id}
	t.arena = append(t.arena, n)
	return n
}

// Node returns the node for id, or nil if id has been pruned or never
// existed in this tree.
func (t *TrackTree) Node(id NodeID) *Node {
	if id < 1 || int(id) > len(t.arena) {
		return nil
	}
	return t.arena[id-1]
}

// Root returns the tree's current root node id.
func (t *TrackTree) Root() NodeID { return t.root }

// Depth returns the number of edges from root to the deepest live leaf.
func (t *TrackTree) Depth() int { return t.depth }

// Leaves returns the ids of every current leaf, in no particular order.
func (t *TrackTree) Leaves() []NodeID {
	out := make([]NodeID, 0, len(t.leaves))
	for id := range t.leaves {
		out = append(out, id)
	}
	return out
}

// LeavesUnder returns the ids of every current leaf in the subtree
// rooted at id (id itself, if it is a leaf). Used by N-scan pruning to
// discard every branch but the chosen one when a root has more than one
// child at the window boundary.
func (t *TrackTree) LeavesUnder(id NodeID) []NodeID {
	n := t.Node(id)
	if n == nil {
		return nil
	}
	if n.IsLeaf() {
		return []NodeID{id}
	}
	var out []NodeID
	for _, child := range n.Children {
		out = append(out, t.LeavesUnder(child)...)
	}
	return out
}

// IsEmpty reports whether every leaf has been pruned away — the tree is
// dead and its owning Scanner should discard it.
func (t *TrackTree) IsEmpty() bool { return len(t.leaves) == 0 }

// AppendChild adds a new hypothesis to leaf parentID: either a
// report-backed continuation or a skip (report == nil), with the given
// edge log-likelihood and resulting State. parentID stops being a leaf;
// the new node becomes one. A node whose existing children were all
// appended for this same frame may take further children, so one leaf
// can branch into several alternative continuations in a single scan.
// Returns an error if parentID is neither a current leaf nor such a
// node (InternalInvariantError territory — a caller bug, not a
// recoverable condition).
func (t *TrackTree) AppendChild(parentID NodeID, frame int, report *motion.Report, state *motion.State, edgeLogLik float64) (NodeID, error) {
	parent := t.Node(parentID)
	if parent == nil {
		return 0, fmt.Errorf("hyptree: append to unknown node %d", parentID)
	}
	if !t.leaves[parentID] {
		for _, c := range parent.Children {
			if t.Node(c).Frame != frame {
				return 0, fmt.Errorf("hyptree: append to non-leaf node %d", parentID)
			}
		}
	}

	child := t.alloc()
	child.Parent = parentID
	child.Frame = frame
	child.Report = report
	child.State = state
	child.EdgeLogLik = edgeLogLik
	child.CumulativeLL = state.LogLikelihood

	parent.Children = append(parent.Children, child.ID)
	delete(t.leaves, parentID)
	t.leaves[child.ID] = true

	if depth := t.depthOf(child.ID); depth > t.depth {
		t.depth = depth
	}
	return child.ID, nil
}

func (t *TrackTree) depthOf(id NodeID) int {
	d := 0
	for n := t.Node(id); n != nil && n.Parent != noParent; n = t.Node(n.Parent) {
		d++
	}
	return d
}

// Prune discards leaf id and walks back up, freeing any ancestor whose
// last child was just removed, stopping at the root (the root is never
// freed — an empty tree is recognised via IsEmpty, then destroyed by its
// owner). Returns an error if id is not a current leaf.
func (t *TrackTree) Prune(id NodeID) error {
	if !t.leaves[id] {
		return fmt.Errorf("hyptree: prune of non-leaf node %d", id)
	}
	delete(t.leaves, id)

	cur := id
	for cur != t.root {
		n := t.Node(cur)
		parentID := n.Parent
		t.free = append(t.free, cur)
		t.arena[cur-1] = nil

		parent := t.Node(parentID)
		parent.Children = removeID(parent.Children, cur)
		if len(parent.Children) > 0 {
			break
		}
		// parent has no children left: it becomes the new frontier,
		// a leaf only if it is also the root (handled by the loop's
		// exit condition) or continues unwinding otherwise.
		if parentID == t.root {
			t.leaves[t.root] = true
			break
		}
		cur = parentID
	}
	t.recomputeDepth()
	return nil
}

func (t *TrackTree) recomputeDepth() {
	max := 0
	for id := range t.leaves {
		if d := t.depthOf(id); d > max {
			max = d
		}
	}
	t.depth = max
}

func removeID(ids []NodeID, target NodeID) []NodeID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// CommitResult is the (report|skip, state) record produced when
// CommitRoot advances the tree's root past the N-scan window.
type CommitResult struct {
	Frame      int
	Report     *motion.Report // nil on skip
	State      *motion.State
	EdgeLogLik float64
}

// CommitRoot advances the root to its sole child, returning the
// committed edge's data for downstream emission. It is only valid when
// the current root has exactly one child — the N-scan window is
// expected to have pruned every other hypothesis by the time a tree's
// depth exceeds maxDepth (spec.md §4.3, §4.6 STEADY). Returns ok=false
// if the root has zero or more than one child.
func (t *TrackTree) CommitRoot() (result CommitResult, ok bool) {
	root := t.Node(t.root)
	if root == nil || len(root.Children) != 1 {
		return CommitResult{}, false
	}
	childID := root.Children[0]
	child := t.Node(childID)

	result = CommitResult{
		Frame:      child.Frame,
		Report:     child.Report,
		State:      child.State,
		EdgeLogLik: child.EdgeLogLik,
	}

	t.arena[t.root-1] = nil
	t.free = append(t.free, t.root)
	t.root = childID
	child.Parent = noParent
	t.recomputeDepth()
	return result, true
}
