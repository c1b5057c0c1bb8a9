// Package paramfile reads the tracker's line-oriented parameter file
// (spec.md §6): lines beginning with ';' are comments and skipped, the
// remaining lines are consumed in a fixed order, one real or integer
// value per line.
package paramfile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fenwick-labs/cornermht/internal/motion"
)

// fieldNames is the fixed order spec.md §6 mandates. It doubles as the
// parameter count: exactly len(fieldNames) non-comment lines must be
// present.
var fieldNames = []string{
	"positionVarianceX", "positionVarianceY", "gradientVariance",
	"intensityVariance", "processVariance", "probDetect", "probEnd",
	"meanNew", "meanFalarms", "maxGHypos", "maxDepth",
	"minGHypoRatio", "intensityThreshold", "maxDistance1", "maxDistance2",
	"maxDistance3", "stateVariance", "endScan", "pos2velLikelihood",
	"vel2curvLikelihood", "startA", "startB", "startC",
}

// intFields marks which of fieldNames parse as integers rather than
// reals (spec.md §6: "(int)" suffix).
var intFields = map[string]bool{
	"maxGHypos": true, "maxDepth": true, "endScan": true,
	"startA": true, "startB": true, "startC": true,
}

// ConfigError reports a missing, short, or malformed parameter file
// (spec.md §7): ConfigError fails fast at start-up.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("paramfile: %s", e.Reason)
	}
	return fmt.Sprintf("paramfile: field %q: %s", e.Field, e.Reason)
}

// Parameters holds every value read from the parameter file, field-by-
// field, independent of how downstream components consume them. See
// DESIGN.md for which fields feed an actual decision versus being
// round-tripped only (maxDistance1/maxDistance3, pos2velLikelihood,
// vel2curvLikelihood, startA/B/C — spec.md §9 "Supplemented features").
type Parameters struct {
	PositionVarianceX float64
	PositionVarianceY float64
	GradientVariance  float64
	IntensityVariance float64
	ProcessVariance   float64
	ProbDetect        float64
	ProbEnd           float64
	MeanNew           float64
	MeanFalarms       float64
	MaxGHypos         int
	MaxDepth          int
	MinGHypoRatio     float64
	IntensityThreshold float64
	MaxDistance1      float64
	MaxDistance2      float64
	MaxDistance3      float64
	StateVariance     float64
	EndScan           int
	Pos2VelLikelihood  float64
	Vel2CurvLikelihood float64
	StartA            int
	StartB            int
	StartC            int
}

// Parse reads Parameters from r, skipping lines whose first non-
// whitespace rune is ';'. Returns a ConfigError if fewer than
// len(fieldNames) data lines are present or any line fails to parse as
// its expected type (spec.md §8 S5).
func Parse(r io.Reader) (Parameters, error) {
	var values []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		values = append(values, line)
	}
	if err := sc.Err(); err != nil {
		return Parameters{}, &ConfigError{Reason: fmt.Sprintf("reading parameter file: %v", err)}
	}
	if len(values) < len(fieldNames) {
		return Parameters{}, &ConfigError{Reason: fmt.Sprintf("expected %d parameter lines, got %d", len(fieldNames), len(values))}
	}

	var p Parameters
	fields := []*float64{
		&p.PositionVarianceX, &p.PositionVarianceY, &p.GradientVariance,
		&p.IntensityVariance, &p.ProcessVariance, &p.ProbDetect, &p.ProbEnd,
		&p.MeanNew, &p.MeanFalarms, nil, nil,
		&p.MinGHypoRatio, &p.IntensityThreshold, &p.MaxDistance1, &p.MaxDistance2,
		&p.MaxDistance3, &p.StateVariance, nil, &p.Pos2VelLikelihood,
		&p.Vel2CurvLikelihood, nil, nil, nil,
	}
	ints := map[int]*int{
		9: &p.MaxGHypos, 10: &p.MaxDepth, 17: &p.EndScan,
		20: &p.StartA, 21: &p.StartB, 22: &p.StartC,
	}

	for i, name := range fieldNames {
		raw := values[i]
		if intFields[name] {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return Parameters{}, &ConfigError{Field: name, Reason: fmt.Sprintf("not an integer: %q", raw)}
			}
			*ints[i] = n
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Parameters{}, &ConfigError{Field: name, Reason: fmt.Sprintf("not a real number: %q", raw)}
		}
		*fields[i] = v
	}
	return p, nil
}

// ToMotionConfig builds the motion.Config the rest of the tracker
// consumes from the parsed parameter file, plus the two values spec.md
// §9 Open Question O1 and the patch-metric redesign note keep outside
// the fixed wire format: allowNewTracks and metric are explicit
// caller-supplied settings, not parsed from the file.
func (p Parameters) ToMotionConfig(allowNewTracks bool, metric motion.PatchMetric) motion.Config {
	return motion.Config{
		PositionVarianceX:  p.PositionVarianceX,
		PositionVarianceY:  p.PositionVarianceY,
		GradientVariance:   p.GradientVariance,
		IntensityVariance:  p.IntensityVariance,
		ProcessVariance:    p.ProcessVariance,
		ProbDetect:         p.ProbDetect,
		ProbEnd:            p.ProbEnd,
		MeanNew:            p.MeanNew,
		MeanFalarms:        p.MeanFalarms,
		MaxGHypos:          p.MaxGHypos,
		MaxDepth:           p.MaxDepth,
		MinGHypoRatio:      p.MinGHypoRatio,
		IntensityThreshold: p.IntensityThreshold,
		MaxDistance1:       p.MaxDistance1,
		MaxDistance2:       p.MaxDistance2,
		MaxDistance3:       p.MaxDistance3,
		StateVariance:      p.StateVariance,
		EndScan:            p.EndScan,
		Pos2VelLikelihood:  p.Pos2VelLikelihood,
		Vel2CurvLikelihood: p.Vel2CurvLikelihood,
		StartA:             p.StartA,
		StartB:             p.StartB,
		StartC:             p.StartC,

		AllowNewTracksAfterFirstScan: allowNewTracks,
		PatchMetric:                  metric,
	}
}

// Lines renders p as one "name = value" line per field, in the fixed
// field order. Because each line carries the field name, Parse does not
// read these lines back. internal/trackio uses this to write the output
// file's leading parameter comment block (spec.md §6).
func (p Parameters) Lines() []string {
	vals := []string{
		fmtFloat(p.PositionVarianceX), fmtFloat(p.PositionVarianceY), fmtFloat(p.GradientVariance),
		fmtFloat(p.IntensityVariance), fmtFloat(p.ProcessVariance), fmtFloat(p.ProbDetect), fmtFloat(p.ProbEnd),
		fmtFloat(p.MeanNew), fmtFloat(p.MeanFalarms), strconv.Itoa(p.MaxGHypos), strconv.Itoa(p.MaxDepth),
		fmtFloat(p.MinGHypoRatio), fmtFloat(p.IntensityThreshold), fmtFloat(p.MaxDistance1), fmtFloat(p.MaxDistance2),
		fmtFloat(p.MaxDistance3), fmtFloat(p.StateVariance), strconv.Itoa(p.EndScan), fmtFloat(p.Pos2VelLikelihood),
		fmtFloat(p.Vel2CurvLikelihood), strconv.Itoa(p.StartA), strconv.Itoa(p.StartB), strconv.Itoa(p.StartC),
	}
	out := make([]string, len(fieldNames))
	for i, name := range fieldNames {
		out[i] = fmt.Sprintf("%s = %s", name, vals[i])
	}
	return out
}

func fmtFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
