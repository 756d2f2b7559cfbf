package harmonica

import (
	"context"
	"fmt"
	"strings"
)

// Manager provides programmatic access to tide atlas lookups and the local
// resource cache. All methods are safe for concurrent use.
// For CLI integration, use NewCommand instead.
type Manager interface {
	// Models returns the catalog entries, sorted by name.
	Models() []Model

	// Resources returns the ResourceManager of a model.
	// Returns ErrUnknownModel if the model is not in the catalog.
	Resources(model string) (*ResourceManager, error)

	// GetComponents interpolates the wanted constituents of model at loc.
	// An empty model selects DefaultModel; no constituents selects all of
	// them. Missing resources are downloaded first.
	GetComponents(ctx context.Context, loc Location, model string, constituents []string, phase PhaseConvention) (*ConstituentTable, error)

	// DownloadModel fetches every resource of a model not yet present.
	DownloadModel(ctx context.Context, model string) error

	// RemoveModel deletes the cached resources of a model.
	RemoveModel(ctx context.Context, model string) error

	// Apply runs a resource action against a model.
	Apply(ctx context.Context, action ResourceAction, model string) error

	// Reconstruct synthesizes water levels from atlas constituents.
	// Returns ErrNoAnalyzer unless WithAnalyzer was given.
	Reconstruct(ctx context.Context, req ReconstructRequest) ([]WaterLevel, error)

	// Deconstruct fits constituents to an observed series.
	// Returns ErrNoAnalyzer unless WithAnalyzer was given, and
	// ErrConvergence if the fit fails.
	Deconstruct(ctx context.Context, req DeconstructRequest) (*ConstituentTable, error)
}

// Ensure manager implements Manager interface.
var _ Manager = (*manager)(nil)

// NewManager creates a new Manager with the given configuration.
// Returns an error if the catalog is invalid or no data directory can be
// determined.
func NewManager(cfg Config, opts ...ManagerOption) (Manager, error) {
	mcfg := newManagerConfig()
	for _, opt := range opts {
		opt(mcfg)
	}

	if err := mcfg.catalog.Validate(); err != nil {
		return nil, fmt.Errorf("harmonica: invalid catalog: %w", err)
	}

	storage, err := newStorage(cfg)
	if err != nil {
		return nil, err
	}

	return &manager{
		cfg:       cfg,
		mcfg:      mcfg,
		catalog:   mcfg.catalog,
		storage:   storage,
		fetcher:   mcfg.resolveFetcher(),
		analyzer:  mcfg.analyzer,
		logger:    mcfg.logger,
		resources: make(map[string]*ResourceManager),
	}, nil
}

// ResourceAction is a bulk operation over a model's resources.
type ResourceAction int

const (
	// ActionDownload ensures every resource is cached.
	ActionDownload ResourceAction = iota + 1

	// ActionRemove deletes the model cache.
	ActionRemove
)

var resourceActions = map[string]ResourceAction{
	"download": ActionDownload,
	"remove":   ActionRemove,
}

// ParseResourceAction maps "download" or "remove" to its action.
// Returns ErrUnknownAction otherwise.
func ParseResourceAction(s string) (ResourceAction, error) {
	a, ok := resourceActions[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

// String returns the action name.
func (a ResourceAction) String() string {
	for name, v := range resourceActions {
		if v == a {
			return name
		}
	}
	return fmt.Sprintf("ResourceAction(%d)", int(a))
}
