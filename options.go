package harmonica

import (
	"net/http"
	"time"
)

// Transport constants for remote fetches.
const (
	// DefaultDialTimeout bounds connection setup to FTP servers.
	DefaultDialTimeout = 30 * time.Second

	// BreakerFailures is the number of consecutive failed fetches after which
	// further fetches fail fast until BreakerCooldown has elapsed.
	BreakerFailures = 3

	// BreakerCooldown is how long the fetch breaker stays open.
	BreakerCooldown = time.Minute
)

// DefaultPeriods is the number of cycles a constituent must complete over a
// signal to be fitted by Deconstruct.
const DefaultPeriods = 6

// ManagerOption configures a Manager.
type ManagerOption func(*managerConfig)

// managerConfig holds configuration for Manager construction.
type managerConfig struct {
	// httpClient is used for http and https fetches.
	httpClient HTTPClient

	// fetcher replaces the default remote transport when set.
	fetcher Fetcher

	// opener opens resource groups as datasets.
	opener Opener

	// analyzer performs harmonic synthesis and fitting. May be nil.
	analyzer Analyzer

	// catalog lists the available models.
	catalog Catalog

	// logger receives diagnostic log messages. May be nil.
	logger Logger

	// progressFn is called while resources download. May be nil.
	progressFn func(DownloadProgress)
}

// newManagerConfig returns a managerConfig with default values.
func newManagerConfig() *managerConfig {
	return &managerConfig{
		httpClient: http.DefaultClient,
		opener:     cdfOpener{},
		catalog:    DefaultCatalog,
	}
}

// resolveFetcher returns the configured fetcher or the default remote one.
func (c *managerConfig) resolveFetcher() Fetcher {
	if c.fetcher != nil {
		return c.fetcher
	}
	return newRemoteFetcher(c.httpClient, c.logger)
}

// WithHTTPClient sets a custom HTTP client for http and https resources.
// Useful for testing with mock servers or customizing timeouts.
// If not set, http.DefaultClient is used.
func WithHTTPClient(client HTTPClient) ManagerOption {
	return func(c *managerConfig) {
		c.httpClient = client
	}
}

// WithFetcher replaces the remote transport entirely.
func WithFetcher(f Fetcher) ManagerOption {
	return func(c *managerConfig) {
		c.fetcher = f
	}
}

// WithOpener sets the collaborator used to open resource groups.
// If not set, files are read as netCDF classic.
func WithOpener(o Opener) ManagerOption {
	return func(c *managerConfig) {
		c.opener = o
	}
}

// WithAnalyzer sets the harmonic analysis collaborator used by Reconstruct
// and Deconstruct.
func WithAnalyzer(a Analyzer) ManagerOption {
	return func(c *managerConfig) {
		c.analyzer = a
	}
}

// WithCatalog replaces DefaultCatalog. The catalog is validated by NewManager.
func WithCatalog(cat Catalog) ManagerOption {
	return func(c *managerConfig) {
		c.catalog = cat
	}
}

// WithLogger sets a logger for diagnostic output.
// If not set, logging is disabled.
func WithLogger(logger Logger) ManagerOption {
	return func(c *managerConfig) {
		c.logger = logger
	}
}

// WithProgress sets a callback for download progress updates.
func WithProgress(fn func(DownloadProgress)) ManagerOption {
	return func(c *managerConfig) {
		c.progressFn = fn
	}
}

// HTTPClient is the interface for HTTP operations.
// *http.Client satisfies this interface.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// Logger is the interface for diagnostic logging.
// Compatible with slog, zap, logrus, and other structured loggers.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}
