// Command tracker runs the multiple-hypothesis corner tracker over a
// sequence of corner-detector output files (spec.md §6): it reads a
// parameter file, a stdin header naming the per-frame corner files, and
// writes the resolved tracks and false alarms to an output file in the
// same fixed layout internal/trackio produces.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fenwick-labs/cornermht/internal/cornerio"
	"github.com/fenwick-labs/cornermht/internal/motion"
	"github.com/fenwick-labs/cornermht/internal/paramfile"
	"github.com/fenwick-labs/cornermht/internal/scanner"
	"github.com/fenwick-labs/cornermht/internal/store"
	"github.com/fenwick-labs/cornermht/internal/trackio"
	"github.com/fenwick-labs/cornermht/internal/tracker"
)

func main() {
	var paramPath string
	var cornerDir string
	var metricFlag string
	var allowNewTracks bool
	var falarmLogLik float64
	var dbPath string

	flag.StringVar(&paramPath, "p", "tracker.param", "path to the parameter file")
	flag.StringVar(&cornerDir, "corner-dir", "", "directory holding the per-frame corner files (default: current directory)")
	flag.StringVar(&metricFlag, "metric", "corrcoeff", "patch goodness test: 'corrcoeff' or 'ssd'")
	flag.BoolVar(&allowNewTracks, "allow-new-tracks", true, "allow new tracks to start after the first scan")
	flag.Float64Var(&falarmLogLik, "falarm-loglik", -50, "log-likelihood assigned to every report's false-alarm hypothesis")
	flag.StringVar(&dbPath, "db", "", "optional sqlite database to mirror finalised tracks and false alarms into")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tracker [flags] <outFile>")
		os.Exit(2)
	}
	outPath := flag.Arg(0)

	metric, err := parseMetric(metricFlag)
	if err != nil {
		log.Fatalf("tracker: %v", err)
	}

	paramFile, err := os.Open(paramPath)
	if err != nil {
		log.Fatalf("tracker: opening parameter file %s: %v", paramPath, err)
	}
	params, err := paramfile.Parse(paramFile)
	paramFile.Close()
	if err != nil {
		log.Fatalf("tracker: %v", err)
	}
	cfg := params.ToMotionConfig(allowNewTracks, metric)

	spec, err := cornerio.ReadSpec(os.Stdin)
	if err != nil {
		log.Fatalf("tracker: %v", err)
	}
	frames, err := cornerio.ReadAllFrames(cornerDir, spec, falarmLogLik)
	if err != nil {
		log.Fatalf("tracker: %v", err)
	}

	var sink tracker.Sink
	if dbPath != "" {
		st, err := store.Open(dbPath)
		if err != nil {
			log.Fatalf("tracker: %v", err)
		}
		defer st.Close()
		sink = st
	}

	f, err := tracker.New(cfg, sink)
	if err != nil {
		log.Fatalf("tracker: %v", err)
	}
	log.Printf("tracker: run %s, model %s, %d frames", f.RunID, scanner.ModelName, len(frames))

	tracks := make(map[int64][]scanner.ConfirmedElement)
	var trackOrder []int64
	var falseAlarms []scanner.FalseAlarm

	collect := func() {
		for e := range f.ConsumeConfirmed() {
			if _, ok := tracks[e.TrackID]; !ok {
				trackOrder = append(trackOrder, e.TrackID)
			}
			tracks[e.TrackID] = append(tracks[e.TrackID], e)
		}
		for a := range f.ConsumeFalse() {
			falseAlarms = append(falseAlarms, a)
		}
	}

	for _, fr := range frames {
		if err := f.Submit(fr.Index, fr.Reports); err != nil {
			log.Fatalf("tracker: submitting frame %d: %v", fr.Index, err)
		}
		collect()
	}
	if err := f.Drain(); err != nil {
		log.Fatalf("tracker: draining: %v", err)
	}
	collect()

	outTracks := make([]trackio.Track, 0, len(trackOrder))
	for _, id := range trackOrder {
		outTracks = append(outTracks, trackio.Track{ID: id, Elements: tracks[id]})
	}

	out, err := os.Create(outPath)
	if err != nil {
		log.Fatalf("tracker: creating output file %s: %v", outPath, err)
	}
	defer out.Close()
	if err := trackio.Write(out, params, outTracks, falseAlarms); err != nil {
		log.Fatalf("tracker: writing output: %v", err)
	}

	log.Printf("tracker: wrote %d tracks, %d false alarms to %s", len(outTracks), len(falseAlarms), outPath)
}

func parseMetric(s string) (motion.PatchMetric, error) {
	switch s {
	case "corrcoeff":
		return motion.CorrCoeff, nil
	case "ssd":
		return motion.SumSquareDiff, nil
	default:
		return 0, fmt.Errorf("unknown -metric %q (want 'corrcoeff' or 'ssd')", s)
	}
}
