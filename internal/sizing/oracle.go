// Package sizing implements SizingOracle (spec.md §4.6): a precomputed
// 2-D lookup table over (spread, liquidity ratio) giving the fraction of
// the smaller-side liquidity to trade, ported line-for-line from
// original_source/lut_runtime_v2.py's bisect-based bilinear
// interpolation.
package sizing

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// gridFile is the on-disk shape of the lookup table: s_grid (spread
// axis), r_grid (liquidity-ratio axis), and g (len(s_grid) x
// len(r_grid) of sizing fractions).
type gridFile struct {
	SGrid []float64   `json:"s_grid"`
	RGrid []float64   `json:"r_grid"`
	G     [][]float64 `json:"g"`
}

// Oracle holds a loaded sizing grid.
type Oracle struct {
	sGrid []float64
	rGrid []float64
	g     [][]float64
}

// Load reads a sizing grid JSON file.
func Load(path string) (*Oracle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sizing: read grid file: %w", err)
	}

	var gf gridFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("sizing: parse grid file: %w", err)
	}
	if len(gf.SGrid) == 0 || len(gf.RGrid) == 0 {
		return nil, fmt.Errorf("sizing: grid file has empty axis")
	}
	if len(gf.G) != len(gf.SGrid) {
		return nil, fmt.Errorf("sizing: grid rows (%d) do not match s_grid length (%d)", len(gf.G), len(gf.SGrid))
	}
	for i, row := range gf.G {
		if len(row) != len(gf.RGrid) {
			return nil, fmt.Errorf("sizing: grid row %d length (%d) does not match r_grid length (%d)", i, len(row), len(gf.RGrid))
		}
	}

	return &Oracle{sGrid: gf.SGrid, rGrid: gf.RGrid, g: gf.G}, nil
}

// Size returns the trade size for a candidate: s is the observed spread,
// b1/b2 are the two sides' available liquidity in a common unit. The
// result is min(b1, b2) · max(0, g), where g is the interpolated grid
// value; it is not clamped above, so a grid value over 1 gives a size
// larger than min(b1, b2).
func (o *Oracle) Size(s, b1, b2 float64) float64 {
	l := b1
	if b2 < l {
		l = b2
	}
	if l <= 0 {
		return 0.0
	}

	r := 0.0
	if b1 > 0 {
		r = b2 / b1
	}

	g := o.interp2(s, r)
	if g < 0 {
		g = 0
	}
	return l * g
}

func (o *Oracle) interp2(s, r float64) float64 {
	var i0, i1 int
	var ts float64

	switch {
	case s <= o.sGrid[0]:
		i0, i1, ts = 0, 0, 0.0
	case s >= o.sGrid[len(o.sGrid)-1]:
		i0, i1, ts = len(o.sGrid)-1, len(o.sGrid)-1, 0.0
	default:
		i0 = bisectRight(o.sGrid, s) - 1
		i1 = i0 + 1
		s0, s1 := o.sGrid[i0], o.sGrid[i1]
		if s1 != s0 {
			ts = (s - s0) / (s1 - s0)
		}
	}

	row0 := o.g[i0]
	row1 := o.g[i1]
	g0 := interp1(o.rGrid, row0, r)
	g1 := interp1(o.rGrid, row1, r)
	return g0 + ts*(g1-g0)
}

func interp1(xGrid, yGrid []float64, x float64) float64 {
	if x <= xGrid[0] {
		return yGrid[0]
	}
	if x >= xGrid[len(xGrid)-1] {
		return yGrid[len(yGrid)-1]
	}
	k := bisectRight(xGrid, x) - 1
	x0, x1 := xGrid[k], xGrid[k+1]
	y0, y1 := yGrid[k], yGrid[k+1]
	if x1 == x0 {
		return y0
	}
	t := (x - x0) / (x1 - x0)
	return y0 + t*(y1-y0)
}

// bisectRight mirrors Python's bisect.bisect_right: the insertion point
// to the right of any existing equal entries.
func bisectRight(grid []float64, x float64) int {
	return sort.Search(len(grid), func(i int) bool { return grid[i] > x })
}
