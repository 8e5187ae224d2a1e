package sizing

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeGrid(t *testing.T, gf gridFile) string {
	t.Helper()
	data, err := json.Marshal(gf)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "grid.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func flatGrid() gridFile {
	return gridFile{
		SGrid: []float64{0.0, 0.01, 0.02},
		RGrid: []float64{0.5, 1.0, 2.0},
		G: [][]float64{
			{0.1, 0.1, 0.1},
			{0.2, 0.2, 0.2},
			{0.3, 0.3, 0.3},
		},
	}
}

func TestLoadValidGrid(t *testing.T) {
	path := writeGrid(t, flatGrid())
	oracle, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(oracle.sGrid) != 3 {
		t.Errorf("sGrid length = %d, want 3", len(oracle.sGrid))
	}
}

func TestLoadMismatchedRows(t *testing.T) {
	gf := flatGrid()
	gf.G = gf.G[:2] // fewer rows than sGrid
	path := writeGrid(t, gf)
	if _, err := Load(path); err == nil {
		t.Error("expected error for mismatched row count")
	}
}

func TestLoadEmptyAxis(t *testing.T) {
	gf := gridFile{SGrid: nil, RGrid: []float64{1}, G: [][]float64{{1}}}
	path := writeGrid(t, gf)
	if _, err := Load(path); err == nil {
		t.Error("expected error for empty axis")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/grid.json"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSizeExactGridPoint(t *testing.T) {
	path := writeGrid(t, flatGrid())
	oracle, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	// s=0.01 exact grid point, r=1.0 exact grid point -> g=0.2.
	got := oracle.Size(0.01, 100, 100)
	want := 0.2 * 100
	if got != want {
		t.Errorf("Size() = %v, want %v", got, want)
	}
}

func TestSizeClampsBeyondBounds(t *testing.T) {
	path := writeGrid(t, flatGrid())
	oracle, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	// s far beyond the top of the grid should clamp to the last row (0.3).
	got := oracle.Size(10.0, 100, 100)
	want := 0.3 * 100
	if got != want {
		t.Errorf("Size() = %v, want %v (clamped to last grid row)", got, want)
	}
}

func TestSizeZeroLiquidity(t *testing.T) {
	path := writeGrid(t, flatGrid())
	oracle, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := oracle.Size(0.01, 0, 100); got != 0 {
		t.Errorf("Size() with zero liquidity = %v, want 0", got)
	}
}

func TestSizeInterpolatesBetweenRows(t *testing.T) {
	path := writeGrid(t, flatGrid())
	oracle, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	// s=0.005 halfway between rows 0 (g=0.1) and 1 (g=0.2) -> ~0.15.
	got := oracle.Size(0.005, 100, 100) / 100
	if got < 0.14 || got > 0.16 {
		t.Errorf("Size() interpolated fraction = %v, want ~0.15", got)
	}
}
