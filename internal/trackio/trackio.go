// Package trackio writes the tracker's finalised output in the
// bit-exact layout spec.md §6 fixes: a leading '#' parameter comment
// block, track counts, per-track M/S element lines, and trailing false
// alarm lines.
package trackio

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/fenwick-labs/cornermht/internal/paramfile"
	"github.com/fenwick-labs/cornermht/internal/scanner"
)

// Track is every ConfirmedElement committed for one track id, in
// ascending frame order (spec.md §4.6 "Ordering guarantees").
type Track struct {
	ID       int64
	Elements []scanner.ConfirmedElement
}

// Write renders params, tracks and falseAlarms in the spec.md §6
// layout. Tracks are written in ascending track-id order; false alarms
// in ascending (frame, x, y) order, both matching the deterministic
// ordering spec.md §8 R1 requires of a tracking run.
func Write(w io.Writer, params paramfile.Parameters, tracks []Track, falseAlarms []scanner.FalseAlarm) error {
	bw := bufio.NewWriter(w)

	for _, line := range params.Lines() {
		if _, err := fmt.Fprintf(bw, "# %s\n", line); err != nil {
			return fmt.Errorf("trackio: writing parameter header: %w", err)
		}
	}

	sortedTracks := make([]Track, len(tracks))
	copy(sortedTracks, tracks)
	sort.Slice(sortedTracks, func(i, j int) bool { return sortedTracks[i].ID < sortedTracks[j].ID })

	sortedAlarms := make([]scanner.FalseAlarm, len(falseAlarms))
	copy(sortedAlarms, falseAlarms)
	sort.Slice(sortedAlarms, func(i, j int) bool {
		if sortedAlarms[i].Frame != sortedAlarms[j].Frame {
			return sortedAlarms[i].Frame < sortedAlarms[j].Frame
		}
		if sortedAlarms[i].RawX != sortedAlarms[j].RawX {
			return sortedAlarms[i].RawX < sortedAlarms[j].RawX
		}
		return sortedAlarms[i].RawY < sortedAlarms[j].RawY
	})

	if _, err := fmt.Fprintf(bw, "%d\n", len(sortedTracks)); err != nil {
		return fmt.Errorf("trackio: writing track count: %w", err)
	}
	if _, err := fmt.Fprintf(bw, "%d\n", len(sortedAlarms)); err != nil {
		return fmt.Errorf("trackio: writing false alarm count: %w", err)
	}

	for _, tr := range sortedTracks {
		elems := make([]scanner.ConfirmedElement, len(tr.Elements))
		copy(elems, tr.Elements)
		sort.Slice(elems, func(i, j int) bool { return elems[i].Frame < elems[j].Frame })

		if _, err := fmt.Fprintf(bw, "%d %d\n", tr.ID, len(elems)); err != nil {
			return fmt.Errorf("trackio: writing track header %d: %w", tr.ID, err)
		}
		for _, e := range elems {
			// spec.md §6: "<M|S> <rx> <ry> <sx> <sy> <logLik> <time> <frame>
			// <modelName>". time is the scan time step (frame * ds, ds=1 per
			// spec.md §4.2), kept as a separate float column from the
			// integer frame index the original's tracker output also carries.
			if _, err := fmt.Fprintf(bw, "%s %s %s %s %s %s %s %d %s\n",
				e.Kind.String(),
				formatFloat(e.RawX), formatFloat(e.RawY),
				formatFloat(e.SmoothX), formatFloat(e.SmoothY),
				formatFloat(e.LogLikelihood),
				formatFloat(float64(e.Frame)),
				e.Frame,
				e.ModelName,
			); err != nil {
				return fmt.Errorf("trackio: writing track %d element: %w", tr.ID, err)
			}
		}
	}

	for _, fa := range sortedAlarms {
		if _, err := fmt.Fprintf(bw, "%s %s %d\n", formatFloat(fa.RawX), formatFloat(fa.RawY), fa.Frame); err != nil {
			return fmt.Errorf("trackio: writing false alarm: %w", err)
		}
	}

	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
