package harmonica

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultModel is used when no model is named.
const DefaultModel = "tpxo9"

// ArchiveKind describes how a model's resources are packaged remotely.
type ArchiveKind int

const (
	// ArchiveNone means each resource is a plain file under the model URL.
	ArchiveNone ArchiveKind = iota

	// ArchiveGzipTar means all resources are members of one .tar.gz archive.
	ArchiveGzipTar

	// ArchiveCompressTar means all resources are members of one .tar.Z
	// archive. Both Unix compress and gzip payloads are accepted.
	ArchiveCompressTar
)

// String returns "none", "gzip-tar" or "compress-tar".
func (k ArchiveKind) String() string {
	switch k {
	case ArchiveGzipTar:
		return "gzip-tar"
	case ArchiveCompressTar:
		return "compress-tar"
	default:
		return "none"
	}
}

// Group maps constituent names to file paths relative to the model directory.
// All files of a group share one grid resolution.
type Group map[string]string

// Model describes one tide atlas product.
type Model struct {
	// Name is the lowercase catalog key, e.g. "tpxo8".
	Name string

	// URL is the archive URL, or the base URL that resource paths are
	// appended to when Archive is ArchiveNone.
	URL string

	// Archive is the remote packaging of the resources.
	Archive ArchiveKind

	// UnitsMultiplier converts dataset amplitudes to meters.
	UnitsMultiplier float64

	// Groups lists dimensionally compatible files in catalog order.
	Groups []Group
}

// Constituents returns the union of all group keys, sorted.
func (m Model) Constituents() []string {
	var names []string
	for _, g := range m.Groups {
		for c := range g {
			names = append(names, c)
		}
	}
	sort.Strings(names)
	return names
}

// HasConstituent reports whether any group provides the constituent.
func (m Model) HasConstituent(name string) bool {
	for _, g := range m.Groups {
		if _, ok := g[name]; ok {
			return true
		}
	}
	return false
}

// Resources returns the distinct relative paths over all groups, sorted.
func (m Model) Resources() []string {
	seen := make(map[string]bool)
	var paths []string
	for _, g := range m.Groups {
		for _, p := range g {
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	sort.Strings(paths)
	return paths
}

// Catalog is a static registry of models keyed by name.
type Catalog map[string]Model

// Validate checks that every model is well formed and that no constituent
// appears in more than one group of a model.
func (c Catalog) Validate() error {
	for name, m := range c {
		if m.Name != name {
			return fmt.Errorf("model %q registered under %q", m.Name, name)
		}
		if m.UnitsMultiplier <= 0 {
			return fmt.Errorf("model %q: units multiplier must be positive", name)
		}
		owner := make(map[string]int)
		for i, g := range m.Groups {
			if len(g) == 0 {
				return fmt.Errorf("model %q: group %d is empty", name, i)
			}
			for con, path := range g {
				if path == "" {
					return fmt.Errorf("model %q: constituent %s has no file", name, con)
				}
				if j, ok := owner[con]; ok {
					return fmt.Errorf("model %q: constituent %s in groups %d and %d", name, con, j, i)
				}
				owner[con] = i
			}
		}
	}
	return nil
}

// Names returns the model names, sorted.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for n := range c {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup finds a model by name. Names are case-insensitive and "tpxo7_2" is
// accepted for tpxo7. Returns ErrUnknownModel if the name is not registered.
func (c Catalog) Lookup(name string) (Model, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultModel
	}
	if key == "tpxo7_2" {
		key = "tpxo7"
	}
	m, ok := c[key]
	if !ok {
		return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return m, nil
}

// sameGroup assigns every constituent in names to path.
func sameGroup(path string, names ...string) Group {
	g := make(Group, len(names))
	for _, n := range names {
		g[n] = path
	}
	return g
}

// DefaultCatalog holds the supported TPXO atlases.
var DefaultCatalog = mustCatalog(Catalog{
	"tpxo9": {
		Name:            "tpxo9",
		URL:             "ftp://ftp.oce.orst.edu/dist/tides/Global/tpxo9_netcdf.tar.gz",
		Archive:         ArchiveGzipTar,
		UnitsMultiplier: 1,
		Groups: []Group{
			sameGroup("tpxo9_netcdf/h_tpxo9.v1.nc",
				"2N2", "K1", "K2", "M2", "M4", "MF", "MM", "MN4", "MS4",
				"N2", "O1", "P1", "Q1", "S1", "S2"),
		},
	},
	"tpxo8": {
		Name:            "tpxo8",
		URL:             "ftp://ftp.oce.orst.edu/dist/tides/TPXO8_atlas_30_v1_nc/",
		Archive:         ArchiveNone,
		UnitsMultiplier: 0.001, // mm
		Groups: []Group{
			{ // 1/30 degree
				"K1": "hf.k1_tpxo8_atlas_30c_v1.nc",
				"K2": "hf.k2_tpxo8_atlas_30c_v1.nc",
				"M2": "hf.m2_tpxo8_atlas_30c_v1.nc",
				"M4": "hf.m4_tpxo8_atlas_30c_v1.nc",
				"N2": "hf.n2_tpxo8_atlas_30c_v1.nc",
				"O1": "hf.o1_tpxo8_atlas_30c_v1.nc",
				"P1": "hf.p1_tpxo8_atlas_30c_v1.nc",
				"Q1": "hf.q1_tpxo8_atlas_30c_v1.nc",
				"S2": "hf.s2_tpxo8_atlas_30c_v1.nc",
			},
			{ // 1/6 degree
				"MF":  "hf.mf_tpxo8_atlas_6.nc",
				"MM":  "hf.mm_tpxo8_atlas_6.nc",
				"MN4": "hf.mn4_tpxo8_atlas_6.nc",
				"MS4": "hf.ms4_tpxo8_atlas_6.nc",
			},
		},
	},
	"tpxo7": {
		Name:            "tpxo7",
		URL:             "ftp://ftp.oce.orst.edu/dist/tides/Global/tpxo7.2_netcdf.tar.Z",
		Archive:         ArchiveCompressTar,
		UnitsMultiplier: 1,
		Groups: []Group{
			sameGroup("DATA/h_tpxo7.2.nc",
				"K1", "K2", "M2", "M4", "MF", "MM", "MN4", "MS4",
				"N2", "O1", "P1", "Q1", "S2"),
		},
	},
})

func mustCatalog(c Catalog) Catalog {
	if err := c.Validate(); err != nil {
		panic("harmonica: invalid catalog: " + err.Error())
	}
	return c
}
