package cluster

import (
	"sort"

	"github.com/fenwick-labs/cornermht/internal/hyptree"
)

// unionFind is a minimal disjoint-set structure over TreeIDs.
type unionFind struct {
	parent map[hyptree.TreeID]hyptree.TreeID
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[hyptree.TreeID]hyptree.TreeID)}
}

func (u *unionFind) find(x hyptree.TreeID) hyptree.TreeID {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
	}
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b hyptree.TreeID) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// Partition recomputes cluster membership from this scan's gated
// reports (spec.md §4.4 step 5): two trees belong together iff some
// leaf of one and some leaf of the other validates the same report this
// scan. touched maps each tree id present this scan to the report ids
// at least one of its leaves validates. A tree whose list is empty
// forms a singleton cluster; a tree with no entry in touched does not
// appear in the result. Components are returned
// sorted by their smallest tree id, each internally sorted, for
// deterministic downstream cluster numbering.
func Partition(touched map[hyptree.TreeID][]int) [][]hyptree.TreeID {
	uf := newUnionFind()
	byReport := make(map[int][]hyptree.TreeID)

	treeIDs := make([]hyptree.TreeID, 0, len(touched))
	for id := range touched {
		treeIDs = append(treeIDs, id)
	}
	sort.Slice(treeIDs, func(i, j int) bool { return treeIDs[i] < treeIDs[j] })

	for _, id := range treeIDs {
		uf.find(id)
		reports := append([]int(nil), touched[id]...)
		sort.Ints(reports)
		for _, r := range reports {
			byReport[r] = append(byReport[r], id)
		}
	}

	reportIDs := make([]int, 0, len(byReport))
	for r := range byReport {
		reportIDs = append(reportIDs, r)
	}
	sort.Ints(reportIDs)
	for _, r := range reportIDs {
		owners := byReport[r]
		for i := 1; i < len(owners); i++ {
			uf.union(owners[0], owners[i])
		}
	}

	groups := make(map[hyptree.TreeID][]hyptree.TreeID)
	for _, id := range treeIDs {
		root := uf.find(id)
		groups[root] = append(groups[root], id)
	}

	roots := make([]hyptree.TreeID, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool {
		return minTreeID(groups[roots[i]]) < minTreeID(groups[roots[j]])
	})

	out := make([][]hyptree.TreeID, 0, len(roots))
	for _, root := range roots {
		members := groups[root]
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		out = append(out, members)
	}
	return out
}

func minTreeID(ids []hyptree.TreeID) hyptree.TreeID {
	min := ids[0]
	for _, id := range ids[1:] {
		if id < min {
			min = id
		}
	}
	return min
}
