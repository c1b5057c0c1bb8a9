// Package cornerio reads the corner-detector front end's output in the
// wire format spec.md §6 fixes: a stdin header naming a file basename,
// frame count and starting frame, followed by one "<basename>.<frame>"
// file per frame holding one corner per line.
package cornerio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fenwick-labs/cornermht/internal/motion"
)

// ErrInput reports a malformed or under-length corner input (spec.md
// §7): InputError fails fast at start-up.
type ErrInput struct {
	Reason string
}

func (e *ErrInput) Error() string { return fmt.Sprintf("cornerio: %s", e.Reason) }

// Frame is every report extracted from one input frame, in file order.
type Frame struct {
	Index   int
	Reports []*motion.Report
}

// Spec is the parsed stdin header: the basename every per-frame corner
// file shares, the number of frames to read, and the frame index the
// first one represents.
type Spec struct {
	Basename     string
	TotalFrames  int
	StartFrame   int
	CornerCounts []int // per-frame corner count, len == TotalFrames
}

// ReadSpec parses the stdin header (spec.md §6): a first line of
// "<basename> <totalFrames> <startFrame>", followed by totalFrames
// lines each holding a single integer corner count.
func ReadSpec(r io.Reader) (Spec, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return Spec{}, &ErrInput{Reason: "missing header line"}
	}
	fields := strings.Fields(sc.Text())
	if len(fields) != 3 {
		return Spec{}, &ErrInput{Reason: fmt.Sprintf("header must have 3 fields, got %d", len(fields))}
	}
	total, err := strconv.Atoi(fields[1])
	if err != nil {
		return Spec{}, &ErrInput{Reason: fmt.Sprintf("totalFrames not an integer: %q", fields[1])}
	}
	start, err := strconv.Atoi(fields[2])
	if err != nil {
		return Spec{}, &ErrInput{Reason: fmt.Sprintf("startFrame not an integer: %q", fields[2])}
	}

	counts := make([]int, 0, total)
	for i := 0; i < total; i++ {
		if !sc.Scan() {
			return Spec{}, &ErrInput{Reason: fmt.Sprintf("expected %d corner-count lines, got %d", total, i)}
		}
		n, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
		if err != nil {
			return Spec{}, &ErrInput{Reason: fmt.Sprintf("corner count for frame %d not an integer: %q", i, sc.Text())}
		}
		counts = append(counts, n)
	}
	if err := sc.Err(); err != nil {
		return Spec{}, &ErrInput{Reason: fmt.Sprintf("reading header: %v", err)}
	}

	return Spec{Basename: fields[0], TotalFrames: total, StartFrame: start, CornerCounts: counts}, nil
}

// ReadAllFrames reads every frame named by spec from dir (or the
// current directory if dir is empty), in order, assigning each report a
// globally unique id across the whole run.
func ReadAllFrames(dir string, spec Spec, falarmLL float64) ([]Frame, error) {
	frames := make([]Frame, 0, spec.TotalFrames)
	nextID := 0
	for i := 0; i < spec.TotalFrames; i++ {
		frameIndex := spec.StartFrame + i
		f, err := ReadFrame(dir, spec.Basename, frameIndex, spec.CornerCounts[i], nextID, falarmLL)
		if err != nil {
			return nil, err
		}
		nextID += len(f.Reports)
		frames = append(frames, f)
	}
	return frames, nil
}

// ReadFrame reads one per-frame corner file ("<basename>.<frame>"),
// expecting exactly wantCount lines of "x y i1 i2 ... i25" (spec.md
// §6). Report ids are assigned sequentially starting at idBase so a
// caller can keep ids unique across an entire run.
func ReadFrame(dir, basename string, frame, wantCount, idBase int, falarmLL float64) (Frame, error) {
	path := basename + "." + strconv.Itoa(frame)
	if dir != "" {
		path = dir + string(os.PathSeparator) + path
	}
	f, err := os.Open(path)
	if err != nil {
		return Frame{}, &ErrInput{Reason: fmt.Sprintf("opening %s: %v", path, err)}
	}
	defer f.Close()
	return readFrameReader(f, path, frame, wantCount, idBase, falarmLL)
}

func readFrameReader(r io.Reader, path string, frame, wantCount, idBase int, falarmLL float64) (Frame, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	reports := make([]*motion.Report, 0, wantCount)
	for i := 0; i < wantCount; i++ {
		if !sc.Scan() {
			return Frame{}, &ErrInput{Reason: fmt.Sprintf("%s: expected %d corners, got %d", path, wantCount, i)}
		}
		fields := strings.Fields(sc.Text())
		if len(fields) != 2+motion.PatchSize*motion.PatchSize {
			return Frame{}, &ErrInput{Reason: fmt.Sprintf("%s line %d: expected %d fields, got %d", path, i+1, 2+motion.PatchSize*motion.PatchSize, len(fields))}
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return Frame{}, &ErrInput{Reason: fmt.Sprintf("%s line %d: x not numeric: %q", path, i+1, fields[0])}
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Frame{}, &ErrInput{Reason: fmt.Sprintf("%s line %d: y not numeric: %q", path, i+1, fields[1])}
		}
		var patch motion.Patch
		for k := 0; k < len(patch); k++ {
			v, err := strconv.ParseUint(fields[2+k], 10, 16)
			if err != nil {
				return Frame{}, &ErrInput{Reason: fmt.Sprintf("%s line %d: intensity %d not numeric: %q", path, i+1, k, fields[2+k])}
			}
			patch[k] = uint16(v)
		}
		reports = append(reports, &motion.Report{
			ID:                  idBase + i,
			Frame:               frame,
			X:                   x,
			Y:                   y,
			Patch:               patch,
			FalarmLogLikelihood: falarmLL,
		})
	}
	if err := sc.Err(); err != nil {
		return Frame{}, &ErrInput{Reason: fmt.Sprintf("%s: %v", path, err)}
	}
	return Frame{Index: frame, Reports: reports}, nil
}
