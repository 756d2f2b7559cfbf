package harmonica

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
)

// atlasFixture describes a small netCDF atlas file.
type atlasFixture struct {
	names []string
	lat   []float64
	lon   []float64

	// gridCoords stores lat_z and lon_z as (nx, ny) like tpxo7.2.
	gridCoords bool

	// single stores one constituent without an nc axis, as int32, like the
	// tpxo8 atlas files.
	single bool

	// value returns the coefficients of constituent c at (ilon, ilat).
	value func(c, ilon, ilat int) (re, im float64)
}

// linearValue is exactly reproduced by bilinear interpolation.
func linearValue(lat, lon []float64) func(c, ilon, ilat int) (float64, float64) {
	return func(c, ilon, ilat int) (float64, float64) {
		return float64(c+1) + 0.01*lon[ilon] + 0.02*lat[ilat], 0.5 - 0.01*lat[ilat]
	}
}

func writeAtlas(t *testing.T, path string, a atlasFixture) {
	t.Helper()
	if a.single && len(a.names) != 1 {
		t.Fatalf("single atlas needs one constituent, got %d", len(a.names))
	}

	nc, nx, ny := len(a.names), len(a.lon), len(a.lat)
	const nct = 4

	h := cdf.NewHeader([]string{"nc", "nct", "nx", "ny"}, []int{nc, nct, nx, ny})
	if a.single {
		h.AddVariable("con", []string{"nct"}, "")
		h.AddVariable("hRe", []string{"nx", "ny"}, []int32{0})
		h.AddVariable("hIm", []string{"nx", "ny"}, []int32{0})
	} else {
		h.AddVariable("con", []string{"nc", "nct"}, "")
		h.AddVariable("hRe", []string{"nc", "nx", "ny"}, []float32{0})
		h.AddVariable("hIm", []string{"nc", "nx", "ny"}, []float32{0})
	}
	if a.gridCoords {
		h.AddVariable("lon_z", []string{"nx", "ny"}, []float64{0})
		h.AddVariable("lat_z", []string{"nx", "ny"}, []float64{0})
	} else {
		h.AddVariable("lon_z", []string{"nx"}, []float64{0})
		h.AddVariable("lat_z", []string{"ny"}, []float64{0})
	}
	h.Define()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	fh, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fh.Close()

	f, err := cdf.Create(fh, h)
	if err != nil {
		t.Fatalf("cdf.Create(%s) error = %v", path, err)
	}

	var con []byte
	for _, n := range a.names {
		con = append(con, []byte(fmt.Sprintf("%-*s", nct, n))...)
	}
	write(t, f, "con", con)

	re := make([]float64, 0, nc*nx*ny)
	im := make([]float64, 0, nc*nx*ny)
	for c := 0; c < nc; c++ {
		for ix := 0; ix < nx; ix++ {
			for iy := 0; iy < ny; iy++ {
				r, i := a.value(c, ix, iy)
				re = append(re, r)
				im = append(im, i)
			}
		}
	}
	if a.single {
		write(t, f, "hRe", toInt32(re))
		write(t, f, "hIm", toInt32(im))
	} else {
		write(t, f, "hRe", toFloat32(re))
		write(t, f, "hIm", toFloat32(im))
	}

	if a.gridCoords {
		lon := make([]float64, 0, nx*ny)
		lat := make([]float64, 0, nx*ny)
		for ix := 0; ix < nx; ix++ {
			for iy := 0; iy < ny; iy++ {
				lon = append(lon, a.lon[ix])
				lat = append(lat, a.lat[iy])
			}
		}
		write(t, f, "lon_z", lon)
		write(t, f, "lat_z", lat)
	} else {
		write(t, f, "lon_z", a.lon)
		write(t, f, "lat_z", a.lat)
	}
}

func write(t *testing.T, f *cdf.File, v string, data interface{}) {
	t.Helper()
	w := f.Writer(v, nil, nil)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("writing %s: %v", v, err)
	}
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

func toInt32(in []float64) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

// seq returns n evenly spaced values starting at start.
func seq(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// memDataset is an in-memory Dataset sharing one grid across constituents.
type memDataset struct {
	names    []string
	lat, lon []float64
	value    func(c, ilon, ilat int) (re, im float64)
	closed   bool
}

var _ Dataset = (*memDataset)(nil)

func (d *memDataset) Constituents() []string { return d.names }

func (d *memDataset) Coordinates(i int) ([]float64, []float64, error) {
	if i < 0 || i >= len(d.names) {
		return nil, nil, ErrDataset
	}
	return d.lat, d.lon, nil
}

func (d *memDataset) Sample(i, ilon, ilat int) (float64, float64, error) {
	if ilon < 0 || ilon >= len(d.lon) || ilat < 0 || ilat >= len(d.lat) {
		return 0, 0, ErrDataset
	}
	re, im := d.value(i, ilon, ilat)
	return re, im, nil
}

func (d *memDataset) Close() error {
	d.closed = true
	return nil
}

func constant(re, im float64) func(c, ilon, ilat int) (float64, float64) {
	return func(int, int, int) (float64, float64) { return re, im }
}
