package cornerio

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func writeFrameFile(t *testing.T, dir, basename string, frame int, lines []string) {
	t.Helper()
	path := filepath.Join(dir, basename+"."+strconv.Itoa(frame))
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func cornerLine(x, y int) string {
	fields := []string{strconv.Itoa(x), strconv.Itoa(y)}
	for i := 0; i < 25; i++ {
		fields = append(fields, strconv.Itoa(100+i))
	}
	return strings.Join(fields, " ")
}

func TestReadSpecParsesHeader(t *testing.T) {
	header := "scene 2 5\n3\n1\n"
	spec, err := ReadSpec(strings.NewReader(header))
	if err != nil {
		t.Fatalf("ReadSpec: %v", err)
	}
	if spec.Basename != "scene" || spec.TotalFrames != 2 || spec.StartFrame != 5 {
		t.Fatalf("spec = %+v, want basename=scene totalFrames=2 startFrame=5", spec)
	}
	if len(spec.CornerCounts) != 2 || spec.CornerCounts[0] != 3 || spec.CornerCounts[1] != 1 {
		t.Fatalf("CornerCounts = %v, want [3 1]", spec.CornerCounts)
	}
}

func TestReadSpecShortHeaderFails(t *testing.T) {
	_, err := ReadSpec(strings.NewReader("scene 2 5\n3\n"))
	if err == nil {
		t.Fatal("want error for missing corner-count line")
	}
}

func TestReadAllFramesAssignsUniqueIDs(t *testing.T) {
	dir := t.TempDir()
	writeFrameFile(t, dir, "scene", 0, []string{cornerLine(10, 10), cornerLine(20, 20)})
	writeFrameFile(t, dir, "scene", 1, []string{cornerLine(11, 10)})

	spec := Spec{Basename: "scene", TotalFrames: 2, StartFrame: 0, CornerCounts: []int{2, 1}}
	frames, err := ReadAllFrames(dir, spec, -10)
	if err != nil {
		t.Fatalf("ReadAllFrames: %v", err)
	}
	if len(frames) != 2 || len(frames[0].Reports) != 2 || len(frames[1].Reports) != 1 {
		t.Fatalf("frames = %+v", frames)
	}
	ids := map[int]bool{}
	for _, f := range frames {
		for _, r := range f.Reports {
			if ids[r.ID] {
				t.Fatalf("duplicate report id %d", r.ID)
			}
			ids[r.ID] = true
			if r.FalarmLogLikelihood != -10 {
				t.Errorf("FalarmLogLikelihood = %v, want -10", r.FalarmLogLikelihood)
			}
		}
	}
	if frames[0].Reports[0].X != 10 || frames[0].Reports[0].Y != 10 {
		t.Errorf("first report = (%v,%v), want (10,10)", frames[0].Reports[0].X, frames[0].Reports[0].Y)
	}
}

func TestReadFrameWrongCornerCountFails(t *testing.T) {
	dir := t.TempDir()
	writeFrameFile(t, dir, "scene", 0, []string{cornerLine(10, 10)})

	_, err := ReadFrame(dir, "scene", 0, 2, 0, 0)
	if err == nil {
		t.Fatal("want error when file has fewer corners than declared")
	}
}

func TestReadFrameMalformedPatchFails(t *testing.T) {
	dir := t.TempDir()
	writeFrameFile(t, dir, "scene", 0, []string{"10 10 not-a-number"})

	_, err := ReadFrame(dir, "scene", 0, 1, 0, 0)
	if err == nil {
		t.Fatal("want error for short/malformed patch line")
	}
}
