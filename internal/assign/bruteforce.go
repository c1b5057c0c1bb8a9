package assign

import "sort"

// MaxBruteForceRows is the size limit below which BruteForceKBest is
// guaranteed to complete in reasonable time: it enumerates every
// injective partial function from rows to columns-or-unassigned, which
// is O((cols+1)^rows).
const MaxBruteForceRows = 6

// BruteForceKBest enumerates every viable assignment of rows to columns
// (each row mapped to a distinct column or left unassigned) and returns
// the k best by total score, used as the test oracle for KBest on small
// inputs (spec.md §8 R2). It is not intended for production-sized
// matrices; callers should check m.Rows <= MaxBruteForceRows.
func BruteForceKBest(m *Matrix, k int) []Assignment {
	if k <= 0 || m.Rows == 0 {
		return nil
	}

	var all []Assignment
	used := make([]bool, m.Cols)
	row := make([]int, m.Rows)

	var recurse func(i int, score float64)
	recurse = func(i int, score float64) {
		if i == m.Rows {
			cp := make([]int, m.Rows)
			copy(cp, row)
			all = append(all, Assignment{Row: cp, TotalScore: score})
			return
		}
		row[i] = -1
		recurse(i+1, score)

		for j := 0; j < m.Cols; j++ {
			if used[j] || !NotForbidden(m.Score[i][j]) {
				continue
			}
			used[j] = true
			row[i] = j
			recurse(i+1, score+m.Score[i][j])
			used[j] = false
		}
		row[i] = -1
	}
	recurse(0, 0)

	sort.SliceStable(all, func(a, b int) bool {
		return all[a].TotalScore > all[b].TotalScore
	})

	if k > len(all) {
		k = len(all)
	}
	return all[:k]
}
