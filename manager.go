package harmonica

import (
	"context"
	"fmt"
	"sync"
)

// manager is the concrete implementation of the Manager interface.
type manager struct {
	// cfg holds the module configuration.
	cfg Config

	// mcfg holds the options resource managers are built from.
	mcfg *managerConfig

	catalog  Catalog
	storage  storageInterface
	fetcher  Fetcher
	analyzer Analyzer

	// logger receives diagnostic messages. May be nil.
	logger Logger

	// mu guards resources.
	mu        sync.Mutex
	resources map[string]*ResourceManager
}

// Models returns the catalog entries, sorted by name.
func (m *manager) Models() []Model {
	names := m.catalog.Names()
	out := make([]Model, 0, len(names))
	for _, n := range names {
		out = append(out, m.catalog[n])
	}
	return out
}

// Resources returns the shared ResourceManager of a model.
func (m *manager) Resources(model string) (*ResourceManager, error) {
	md, err := m.catalog.Lookup(model)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rm, ok := m.resources[md.Name]
	if !ok {
		rm = newResourceManager(md, m.cfg, m.storage, m.fetcher, m.mcfg)
		m.resources[md.Name] = rm
	}
	return rm, nil
}

// GetComponents interpolates constituents at a location.
func (m *manager) GetComponents(ctx context.Context, loc Location, model string, constituents []string, phase PhaseConvention) (*ConstituentTable, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	rm, err := m.Resources(model)
	if err != nil {
		return nil, err
	}

	table := NewConstituentTable()
	err = rm.WithDatasets(ctx, constituents, func(set *DatasetSet) error {
		wanted := set.Wanted()
		for _, ds := range set.Datasets {
			if err := interpolate(ds, loc, wanted, rm.UnitsMultiplier(), phase, table); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if m.logger != nil {
		m.logger.Debug("interpolated constituents", "model", rm.Model().Name, "location", loc.String(), "count", table.Len())
	}
	return table, nil
}

// DownloadModel fetches every resource of a model not yet present.
func (m *manager) DownloadModel(ctx context.Context, model string) error {
	rm, err := m.Resources(model)
	if err != nil {
		return err
	}
	return rm.DownloadModel(ctx)
}

// RemoveModel deletes the cached resources of a model.
func (m *manager) RemoveModel(ctx context.Context, model string) error {
	rm, err := m.Resources(model)
	if err != nil {
		return err
	}
	return rm.RemoveModel()
}

// Apply dispatches a resource action.
func (m *manager) Apply(ctx context.Context, action ResourceAction, model string) error {
	switch action {
	case ActionDownload:
		return m.DownloadModel(ctx, model)
	case ActionRemove:
		return m.RemoveModel(ctx, model)
	default:
		return fmt.Errorf("%w: %v", ErrUnknownAction, action)
	}
}

// Reconstruct synthesizes water levels at a location.
func (m *manager) Reconstruct(ctx context.Context, req ReconstructRequest) ([]WaterLevel, error) {
	if m.analyzer == nil {
		return nil, ErrNoAnalyzer
	}
	if len(req.Times) == 0 {
		return nil, fmt.Errorf("%w: no times to evaluate", ErrInvalidSignal)
	}

	table, err := m.GetComponents(ctx, req.Location, req.Model, req.Constituents, req.Phase)
	if err != nil {
		return nil, err
	}

	components := table.components()
	if req.Offset != nil {
		components = append(components, Component{Name: offsetConstituent, Phase: *req.Offset})
	}

	levels, err := m.analyzer.Synthesize(components, req.Times)
	if err != nil {
		return nil, fmt.Errorf("harmonica: synthesis failed: %w", err)
	}
	if len(levels) != len(req.Times) {
		return nil, fmt.Errorf("harmonica: synthesis returned %d levels for %d times", len(levels), len(req.Times))
	}

	out := make([]WaterLevel, len(levels))
	for i, lvl := range levels {
		out[i] = WaterLevel{Time: req.Times[i], Level: lvl}
	}
	return out, nil
}

// Deconstruct fits constituents to an observed series.
func (m *manager) Deconstruct(ctx context.Context, req DeconstructRequest) (*ConstituentTable, error) {
	if m.analyzer == nil {
		return nil, ErrNoAnalyzer
	}
	if err := validateSignal(req.Levels, req.Times); err != nil {
		return nil, err
	}

	periods := req.Periods
	if periods <= 0 {
		periods = DefaultPeriods
	}
	span := req.Times[len(req.Times)-1].Sub(req.Times[0])
	candidates := fitCandidates(req.Constituents, span, periods)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no constituent completes %d cycles in %v; use a longer signal", ErrConvergence, periods, span)
	}

	fitted, err := m.analyzer.Fit(req.Levels, req.Times, candidates)
	if err != nil {
		return nil, convergenceError(err)
	}
	if m.logger != nil {
		m.logger.Debug("fitted constituents", "candidates", len(candidates), "fitted", len(fitted))
	}
	return fitTable(fitted, req.Phase), nil
}
