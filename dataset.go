package harmonica

import (
	"fmt"
	"os"
	"strings"

	"github.com/ctessum/cdf"
)

// Atlas variable and dimension names.
const (
	varConstituents = "con"
	varLongitude    = "lon_z"
	varLatitude     = "lat_z"
	varReal         = "hRe"
	varImag         = "hIm"

	dimConstituent = "nc"
	dimLongitude   = "nx"
	dimLatitude    = "ny"
)

// Dataset is an opened resource group: one or more atlas files read as one
// logical dataset whose constituents are numbered in file order.
type Dataset interface {
	// Constituents returns the uppercase constituent names by index.
	Constituents() []string

	// Coordinates returns the latitude and longitude breakpoints of the grid
	// of constituent i.
	Coordinates(i int) (lat, lon []float64, err error)

	// Sample returns the real and imaginary coefficients of constituent i at
	// grid cell (ilon, ilat).
	Sample(i, ilon, ilat int) (re, im float64, err error)

	// Close releases the underlying files.
	Close() error
}

// Opener opens the files of one resource group as a Dataset.
type Opener interface {
	Open(paths []string) (Dataset, error)
}

// cdfOpener reads netCDF classic atlas files.
type cdfOpener struct{}

var _ Opener = cdfOpener{}

// Open opens every path and concatenates their constituents in path order.
// Errors wrap ErrDataset.
func (cdfOpener) Open(paths []string) (Dataset, error) {
	ds := &cdfDataset{}
	for _, p := range paths {
		if err := ds.add(p); err != nil {
			ds.Close()
			return nil, err
		}
	}
	if len(ds.members) == 0 {
		ds.Close()
		return nil, fmt.Errorf("%w: no constituents in %s", ErrDataset, strings.Join(paths, ", "))
	}
	return ds, nil
}

// cdfDataset implements Dataset over a list of netCDF files.
type cdfDataset struct {
	files   []*os.File
	members []cdfMember
	names   []string
}

// cdfMember locates one constituent inside a file.
type cdfMember struct {
	path  string
	file  *cdf.File
	local int
}

var _ Dataset = (*cdfDataset)(nil)

func (d *cdfDataset) add(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDataset, err)
	}
	d.files = append(d.files, fh)

	f, err := cdf.Open(fh)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDataset, path, err)
	}
	for _, v := range []string{varConstituents, varLongitude, varLatitude, varReal, varImag} {
		if len(f.Header.Lengths(v)) == 0 {
			return fmt.Errorf("%w: %s: missing variable %s", ErrDataset, path, v)
		}
	}

	names, err := readNames(f)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDataset, path, err)
	}
	for i, name := range names {
		d.members = append(d.members, cdfMember{path: path, file: f, local: i})
		d.names = append(d.names, name)
	}
	return nil
}

func (d *cdfDataset) Constituents() []string {
	return append([]string(nil), d.names...)
}

func (d *cdfDataset) member(i int) (cdfMember, error) {
	if i < 0 || i >= len(d.members) {
		return cdfMember{}, fmt.Errorf("%w: constituent index %d out of range", ErrDataset, i)
	}
	return d.members[i], nil
}

func (d *cdfDataset) Coordinates(i int) (lat, lon []float64, err error) {
	m, err := d.member(i)
	if err != nil {
		return nil, nil, err
	}
	if lat, err = readAxis(m, varLatitude, dimLatitude); err != nil {
		return nil, nil, err
	}
	if lon, err = readAxis(m, varLongitude, dimLongitude); err != nil {
		return nil, nil, err
	}
	return lat, lon, nil
}

func (d *cdfDataset) Sample(i, ilon, ilat int) (re, im float64, err error) {
	m, err := d.member(i)
	if err != nil {
		return 0, 0, err
	}
	at := map[string]int{dimConstituent: m.local, dimLongitude: ilon, dimLatitude: ilat}
	if re, err = readCell(m, varReal, at); err != nil {
		return 0, 0, err
	}
	if im, err = readCell(m, varImag, at); err != nil {
		return 0, 0, err
	}
	return re, im, nil
}

func (d *cdfDataset) Close() error {
	var first error
	for _, f := range d.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	d.files = nil
	return first
}

// readNames decodes the con variable, either a single char string or a
// (nc, strlen) char matrix.
func readNames(f *cdf.File) ([]string, error) {
	lengths := f.Header.Lengths(varConstituents)
	r := f.Reader(varConstituents, nil, nil)
	raw, ok := r.Zero(-1).([]byte)
	if !ok {
		return nil, fmt.Errorf("%s is not a char variable", varConstituents)
	}
	if _, err := r.Read(raw); err != nil {
		return nil, fmt.Errorf("reading %s: %v", varConstituents, err)
	}

	width := lengths[len(lengths)-1]
	if width == 0 {
		return nil, fmt.Errorf("%s is empty", varConstituents)
	}
	names := make([]string, 0, len(raw)/width)
	for off := 0; off+width <= len(raw); off += width {
		names = append(names, normalizeConstituent(string(raw[off:off+width])))
	}
	return names, nil
}

// normalizeConstituent trims padding and uppercases a stored name.
func normalizeConstituent(s string) string {
	return strings.ToUpper(strings.TrimSpace(strings.Trim(s, "\x00")))
}

// readAxis reads v along dimension along, pinning the constituent axis at
// the member's index and any other axis at 0.
//
// cdf readers cover one contiguous span between two inclusive corners, so
// the span from the first to the last element of the axis is read and the
// axis is picked out at its stride.
func readAxis(m cdfMember, v, along string) ([]float64, error) {
	dims := m.file.Header.Dimensions(v)
	lengths := m.file.Header.Lengths(v)
	axis := indexOf(dims, along)
	if axis < 0 {
		return nil, fmt.Errorf("%w: %s: %s has no %s axis", ErrDataset, m.path, v, along)
	}
	n := lengths[axis]
	if n == 0 {
		return nil, fmt.Errorf("%w: %s: %s is empty", ErrDataset, m.path, v)
	}

	first := make([]int, len(dims))
	for k, dim := range dims {
		if dim == dimConstituent {
			first[k] = m.local
		}
	}
	last := append([]int(nil), first...)
	last[axis] = n - 1

	stride := 1
	for _, l := range lengths[axis+1:] {
		stride *= l
	}
	span, err := readFloats(m, v, first, last, (n-1)*stride+1)
	if err != nil {
		return nil, err
	}
	if stride == 1 {
		return span, nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = span[i*stride]
	}
	return out, nil
}

// readCell reads the single element of v at the given axis positions.
func readCell(m cdfMember, v string, at map[string]int) (float64, error) {
	dims := m.file.Header.Dimensions(v)
	lengths := m.file.Header.Lengths(v)
	idx := make([]int, len(dims))
	for k, dim := range dims {
		i := at[dim]
		if i < 0 || i >= lengths[k] {
			return 0, fmt.Errorf("%w: %s: %s index %d outside [0, %d)", ErrDataset, m.path, dim, i, lengths[k])
		}
		idx[k] = i
	}
	vals, err := readFloats(m, v, idx, idx, 1)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

// readFloats reads n contiguous elements of v between the inclusive
// corners begin and end.
func readFloats(m cdfMember, v string, begin, end []int, n int) ([]float64, error) {
	r := m.file.Reader(v, begin, end)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("%w: %s: reading %s: %v", ErrDataset, m.path, v, err)
	}

	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		out := make([]float64, len(b))
		for i, x := range b {
			out[i] = float64(x)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(b))
		for i, x := range b {
			out[i] = float64(x)
		}
		return out, nil
	case []int16:
		out := make([]float64, len(b))
		for i, x := range b {
			out[i] = float64(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s: %s has unsupported type %T", ErrDataset, m.path, v, buf)
	}
}

func indexOf(list []string, s string) int {
	for i, x := range list {
		if x == s {
			return i
		}
	}
	return -1
}
