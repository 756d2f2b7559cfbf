package harmonica

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ResourceManager resolves, caches and opens the resource files of one
// model. It is safe for concurrent use; downloads are serialized.
type ResourceManager struct {
	model   Model
	cfg     Config
	storage storageInterface
	fetcher Fetcher
	opener  Opener
	logger  Logger

	// progressFn is called while resources download. May be nil.
	progressFn func(DownloadProgress)

	// downloadMu serializes downloads within the process. The model lock
	// file covers other processes.
	downloadMu sync.Mutex
}

// NewResourceManager creates a ResourceManager for a cataloged model.
// Returns ErrUnknownModel if the name is not in the catalog.
func NewResourceManager(model string, cfg Config, opts ...ManagerOption) (*ResourceManager, error) {
	mcfg := newManagerConfig()
	for _, opt := range opts {
		opt(mcfg)
	}
	if err := mcfg.catalog.Validate(); err != nil {
		return nil, fmt.Errorf("harmonica: invalid catalog: %w", err)
	}

	m, err := mcfg.catalog.Lookup(model)
	if err != nil {
		return nil, err
	}
	st, err := newStorage(cfg)
	if err != nil {
		return nil, err
	}
	return newResourceManager(m, cfg, st, mcfg.resolveFetcher(), mcfg), nil
}

func newResourceManager(m Model, cfg Config, st storageInterface, fetcher Fetcher, mcfg *managerConfig) *ResourceManager {
	return &ResourceManager{
		model:      m,
		cfg:        cfg,
		storage:    st,
		fetcher:    fetcher,
		opener:     mcfg.opener,
		logger:     mcfg.logger,
		progressFn: mcfg.progressFn,
	}
}

// Model returns the catalog entry being managed.
func (r *ResourceManager) Model() Model {
	return r.model
}

// AvailableConstituents returns every constituent the model provides, sorted.
func (r *ResourceManager) AvailableConstituents() []string {
	return r.model.Constituents()
}

// UnitsMultiplier returns the factor converting dataset amplitudes to meters.
func (r *ResourceManager) UnitsMultiplier() float64 {
	return r.model.UnitsMultiplier
}

// EnsureCached returns a local path for a resource. The pre-existing tree is
// consulted first, then the managed cache; only then is the resource
// downloaded into the cache.
func (r *ResourceManager) EnsureCached(ctx context.Context, resource string) (string, error) {
	name := r.model.Name
	if p := r.storage.preExistingPath(name, resource); r.storage.exists(p) {
		observeLookup(name, sourcePreExisting)
		return p, nil
	}

	path := r.storage.cachedPath(name, resource)
	if r.storage.exists(path) {
		observeLookup(name, sourceCache)
		return path, nil
	}

	if err := r.Download(ctx, resource, r.storage.modelDir(name)); err != nil {
		return "", err
	}
	observeLookup(name, sourceRemote)
	return path, nil
}

// DownloadModel ensures every resource of the model is present locally.
// Resources already cached or pre-existing are not fetched again.
func (r *ResourceManager) DownloadModel(ctx context.Context) error {
	for _, res := range r.model.Resources() {
		if _, err := r.EnsureCached(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

// RemoveModel deletes every cached resource of the model. It waits for the
// model's download lock, so a download running in another process finishes
// first; only the lock file survives. A missing directory is not an error.
// The pre-existing tree is never touched.
func (r *ResourceManager) RemoveModel() error {
	r.downloadMu.Lock()
	defer r.downloadMu.Unlock()

	if r.logger != nil {
		r.logger.Info("removing model cache", "model", r.model.Name, "path", r.storage.modelDir(r.model.Name))
	}
	return r.storage.removeModelDir(r.model.Name)
}

// resolveWanted normalizes requested constituent names. An empty request
// means every constituent of the model. Returns ErrUnknownConstituent
// naming every unrecognized constituent.
func (r *ResourceManager) resolveWanted(wanted []string) ([]string, error) {
	if len(wanted) == 0 {
		return r.model.Constituents(), nil
	}

	seen := make(map[string]bool, len(wanted))
	var names, unknown []string
	for _, w := range wanted {
		name := strings.ToUpper(strings.TrimSpace(w))
		if seen[name] {
			continue
		}
		seen[name] = true
		if !r.model.HasConstituent(name) {
			unknown = append(unknown, w)
			continue
		}
		names = append(names, name)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s not provided by %s", ErrUnknownConstituent, strings.Join(unknown, ", "), r.model.Name)
	}
	sort.Strings(names)
	return names, nil
}

// DatasetSet holds the datasets opened for one request.
type DatasetSet struct {
	// Constituents are the resolved, uppercase constituent names requested.
	Constituents []string

	// Datasets has one entry per resource group touched by the request, in
	// catalog order.
	Datasets []Dataset
}

// Wanted returns Constituents as a set.
func (s *DatasetSet) Wanted() map[string]bool {
	set := make(map[string]bool, len(s.Constituents))
	for _, c := range s.Constituents {
		set[c] = true
	}
	return set
}

// Close closes every dataset and returns the first error. Safe to call more
// than once.
func (s *DatasetSet) Close() error {
	var first error
	for _, ds := range s.Datasets {
		if err := ds.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.Datasets = nil
	return first
}

// GetDatasets opens one dataset per resource group holding any wanted
// constituent. All names are validated before any file is fetched or
// opened. The caller must close the returned set; WithDatasets does so
// automatically.
func (r *ResourceManager) GetDatasets(ctx context.Context, wanted []string) (*DatasetSet, error) {
	names, err := r.resolveWanted(wanted)
	if err != nil {
		return nil, err
	}

	set := &DatasetSet{Constituents: names}
	for i, g := range r.model.Groups {
		files := groupFiles(g, names)
		if len(files) == 0 {
			continue
		}

		paths, err := r.groupPaths(ctx, files)
		if err != nil {
			set.Close()
			return nil, err
		}

		ds, err := r.opener.Open(paths)
		if err != nil {
			set.Close()
			if errors.Is(err, ErrDataset) {
				return nil, fmt.Errorf("%s group %d: %w", r.model.Name, i, err)
			}
			return nil, fmt.Errorf("%w: %s group %d: %v", ErrDataset, r.model.Name, i, err)
		}
		datasetsOpenedTotal.WithLabelValues(r.model.Name).Inc()
		if r.logger != nil {
			r.logger.Debug("opened dataset", "model", r.model.Name, "group", i, "files", len(paths))
		}
		set.Datasets = append(set.Datasets, ds)
	}
	return set, nil
}

// WithDatasets opens the datasets for wanted, calls fn and closes them on
// every path out.
func (r *ResourceManager) WithDatasets(ctx context.Context, wanted []string, fn func(*DatasetSet) error) (err error) {
	set, err := r.GetDatasets(ctx, wanted)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := set.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: closing datasets: %v", ErrDataset, cerr)
		}
	}()
	return fn(set)
}

// groupFiles returns the distinct files of g covering names, sorted.
func groupFiles(g Group, names []string) []string {
	seen := make(map[string]bool)
	var files []string
	for _, n := range names {
		p, ok := g[n]
		if !ok || seen[p] {
			continue
		}
		seen[p] = true
		files = append(files, p)
	}
	sort.Strings(files)
	return files
}

// groupPaths resolves the files of one group. A group entirely present in
// the pre-existing tree is opened from there without touching the cache.
func (r *ResourceManager) groupPaths(ctx context.Context, files []string) ([]string, error) {
	name := r.model.Name
	paths := make([]string, 0, len(files))
	for _, f := range files {
		p := r.storage.preExistingPath(name, f)
		if !r.storage.exists(p) {
			paths = nil
			break
		}
		paths = append(paths, p)
	}
	if paths != nil {
		for range paths {
			observeLookup(name, sourcePreExisting)
		}
		return paths, nil
	}

	paths = make([]string, 0, len(files))
	for _, f := range files {
		p, err := r.EnsureCached(ctx, f)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
