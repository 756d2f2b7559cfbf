package harmonica

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// seamTolerance is the slack, in degrees, allowed when deciding whether a
// longitude grid closes around the globe.
const seamTolerance = 1e-6

// gridCell is the cell bracketing a query point and its bilinear weights.
// Corners are ordered (left, bottom), (left, top), (right, bottom),
// (right, top).
type gridCell struct {
	left, right int
	bottom, top int
	weights     [4]float64
}

// corners returns the (lon, lat) indices matching weights.
func (c gridCell) corners() [4][2]int {
	return [4][2]int{
		{c.left, c.bottom},
		{c.left, c.top},
		{c.right, c.bottom},
		{c.right, c.top},
	}
}

// locateCell brackets (lon, lat) in the breakpoint arrays and computes
// normalized bilinear weights. lon must already be in [0, 360).
func locateCell(lat, lon []float64, qlat, qlon float64) (gridCell, error) {
	bottom, top, dy, err := bracketLatitude(lat, qlat)
	if err != nil {
		return gridCell{}, err
	}
	left, right, dx, err := bracketLongitude(lon, qlon)
	if err != nil {
		return gridCell{}, err
	}

	w := []float64{
		(1 - dx) * (1 - dy),
		(1 - dx) * dy,
		dx * (1 - dy),
		dx * dy,
	}
	sum := floats.Sum(w)
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return gridCell{}, fmt.Errorf("%w: degenerate cell at (%g, %g)", ErrOutOfCoverage, qlat, qlon)
	}
	floats.Scale(1/sum, w)

	cell := gridCell{left: left, right: right, bottom: bottom, top: top}
	copy(cell.weights[:], w)
	return cell, nil
}

// bisectRight returns the insertion point of x in sorted a, after any
// entries equal to x.
func bisectRight(a []float64, x float64) int {
	return sort.Search(len(a), func(i int) bool { return a[i] > x })
}

func bracketLatitude(lat []float64, q float64) (bottom, top int, dy float64, err error) {
	n := len(lat)
	if n < 2 {
		return 0, 0, 0, fmt.Errorf("%w: latitude grid has %d breakpoints", ErrDataset, n)
	}
	top = bisectRight(lat, q)
	switch {
	case top == n && q == lat[n-1]:
		top = n - 1
	case top == 0 || top == n:
		return 0, 0, 0, fmt.Errorf("%w: latitude %g outside [%g, %g]", ErrOutOfCoverage, q, lat[0], lat[n-1])
	}
	bottom = top - 1
	dy = (q - lat[bottom]) / (lat[top] - lat[bottom])
	return bottom, top, dy, nil
}

// bracketLongitude brackets q, wrapping across the 0/360 seam when the grid
// spans the globe.
func bracketLongitude(lon []float64, q float64) (left, right int, dx float64, err error) {
	n := len(lon)
	if n < 2 {
		return 0, 0, 0, fmt.Errorf("%w: longitude grid has %d breakpoints", ErrDataset, n)
	}
	right = bisectRight(lon, q)
	if right > 0 && right < n {
		left = right - 1
		return left, right, (q - lon[left]) / (lon[right] - lon[left]), nil
	}

	step := lon[n-1] - lon[n-2]
	global := lon[n-1]-lon[0]+step >= 360-seamTolerance
	if !global {
		if right == n && q == lon[n-1] {
			return n - 2, n - 1, 1, nil
		}
		return 0, 0, 0, fmt.Errorf("%w: longitude %g outside [%g, %g]", ErrOutOfCoverage, q, lon[0], lon[n-1])
	}

	// the cell between the last breakpoint and the first one shifted by 360
	if q < lon[0] {
		q += 360
	}
	lo, hi := lon[n-1], lon[0]+360
	return n - 1, 0, (q - lo) / (hi - lo), nil
}

// interpolate evaluates every wanted constituent of ds at loc and stores the
// results in table. Names present twice in ds use the first occurrence.
func interpolate(ds Dataset, loc Location, wanted map[string]bool, multiplier float64, phase PhaseConvention, table *ConstituentTable) error {
	qlat, qlon := loc.Latitude, loc.normalizedLongitude()

	seen := make(map[string]bool)
	for i, name := range ds.Constituents() {
		if !wanted[name] || seen[name] {
			continue
		}
		seen[name] = true

		speed, ok := Speed(name)
		if !ok {
			return fmt.Errorf("%w: no speed for %s", ErrUnknownConstituent, name)
		}

		lat, lon, err := ds.Coordinates(i)
		if err != nil {
			return err
		}
		cell, err := locateCell(lat, lon, qlat, qlon)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		var re, im [4]float64
		for k, c := range cell.corners() {
			if re[k], im[k], err = ds.Sample(i, c[0], c[1]); err != nil {
				return err
			}
		}

		h := complex(floats.Dot(cell.weights[:], re[:]), -floats.Dot(cell.weights[:], im[:]))
		table.Set(ConstituentRecord{
			Name:      name,
			Amplitude: cmplx.Abs(h) * multiplier,
			Phase:     phase.apply(cmplx.Phase(h) * 180 / math.Pi),
			Speed:     speed,
		})
	}
	return nil
}
