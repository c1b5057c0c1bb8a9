package assign

// murtyNode is one partition in Murty's algorithm: a set of forced
// (row->col) pairings, a set of excluded pairings, and the optimal
// assignment within that partition (computed once, at insertion time).
type murtyNode struct {
	forced     map[int]int
	excluded   map[[2]int]bool
	assignment Assignment
}

// KBest returns up to k disjoint global hypotheses in descending score
// order: the best assignment, then its best replacement, and so on,
// via Murty's algorithm over repeated Hungarian solves. Returns fewer
// than k results if the matrix does not admit that many distinct viable
// assignments, and nil if it admits none (spec.md §4.5: the cluster's
// trees are then forcibly ended).
func KBest(m *Matrix, k int) []Assignment {
	if k <= 0 || m.Rows == 0 {
		return nil
	}

	best, ok := solveBest(m, nil, nil)
	if !ok {
		return nil
	}

	pending := []murtyNode{{forced: map[int]int{}, excluded: map[[2]int]bool{}, assignment: best}}
	var results []Assignment

	for len(results) < k && len(pending) > 0 {
		bestIdx := 0
		for i := 1; i < len(pending); i++ {
			if pending[i].assignment.TotalScore > pending[bestIdx].assignment.TotalScore {
				bestIdx = i
			}
		}
		cur := pending[bestIdx]
		pending = append(pending[:bestIdx], pending[bestIdx+1:]...)

		duplicate := false
		for _, r := range results {
			if equalAssignment(r.Row, cur.assignment.Row) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		results = append(results, cur.assignment)

		pending = append(pending, partition(m, cur)...)
	}

	return results
}

// partition generates cur's children per Murty's scheme: for each free
// row i (in ascending index order), a child that reuses cur's forced
// pairings for rows before i, forces them for rows before i exactly as
// cur's own solution chose, and excludes cur's choice at row i — then
// locks row i to that choice before moving to row i+1. This produces a
// set of children whose union of solution spaces, minus the single
// assignment cur itself, exactly covers every assignment reachable from
// cur's partition.
func partition(m *Matrix, cur murtyNode) []murtyNode {
	var children []murtyNode
	forced := make(map[int]int, len(cur.forced))
	for k, v := range cur.forced {
		forced[k] = v
	}

	for i := 0; i < len(cur.assignment.Row); i++ {
		if _, already := cur.forced[i]; already {
			continue
		}
		col := cur.assignment.Row[i]
		if col < 0 {
			continue
		}

		excluded := make(map[[2]int]bool, len(cur.excluded)+1)
		for k := range cur.excluded {
			excluded[k] = true
		}
		excluded[[2]int{i, col}] = true

		childForced := make(map[int]int, len(forced))
		for k, v := range forced {
			childForced[k] = v
		}

		if assignment, ok := solveBest(m, childForced, excluded); ok {
			children = append(children, murtyNode{forced: childForced, excluded: excluded, assignment: assignment})
		}

		forced[i] = col
	}
	return children
}
