// Command harmonica reports tidal constituents from global tide atlases and
// manages the local atlas cache.
//
// Configuration is loaded from a .env file if present, then from environment
// variables:
//   - HARMONICA_DATA_DIR: Override for the cache directory (optional)
//   - HARMONICA_PRE_EXISTING_DATA_DIR: Read-only atlas tree consulted first (optional)
//   - HARMONICA_MIRRORS: Per-model URL overrides, e.g. "tpxo8=https://host/tpxo8/,tpxo9=https://host/tpxo9.tar.gz" (optional)
//   - HARMONICA_REQUEST_TIMEOUT: Limit for each remote fetch, e.g. "30m" (optional)
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/erdc/harmonica"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// CLI exit codes for standardized error reporting.
const (
	// ExitSuccess indicates the operation completed successfully.
	ExitSuccess = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError = 1

	// ExitInvalidArgs indicates invalid command line arguments.
	ExitInvalidArgs = 2

	// ExitUnknownModel indicates the model is not in the catalog.
	ExitUnknownModel = 3

	// ExitUnknownConstituent indicates a constituent the model does not provide.
	ExitUnknownConstituent = 4

	// ExitNetworkError indicates a download or archive failure.
	ExitNetworkError = 5

	// ExitOutOfCoverage indicates the location is outside the atlas grid.
	ExitOutOfCoverage = 6

	// ExitStorageError indicates a filesystem operation failed.
	ExitStorageError = 7

	// ExitDatasetError indicates an atlas file could not be read.
	ExitDatasetError = 8
)

// envConfig is decoded from HARMONICA_* variables.
type envConfig struct {
	DataDir            string        `envconfig:"DATA_DIR"`
	PreExistingDataDir string        `envconfig:"PRE_EXISTING_DATA_DIR"`
	Mirrors            mirrorList    `envconfig:"MIRRORS"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT"`
}

// mirrorList decodes comma-separated model=url pairs. envconfig's default map
// syntax splits on ':', which every URL contains.
type mirrorList map[string]string

// Decode implements envconfig.Decoder.
func (m *mirrorList) Decode(value string) error {
	out := mirrorList{}
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		model, url, ok := strings.Cut(item, "=")
		model, url = strings.TrimSpace(model), strings.TrimSpace(url)
		if !ok || model == "" || url == "" {
			return fmt.Errorf("invalid mirror %q, want model=url", item)
		}
		out[model] = url
	}
	*m = out
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitInvalidArgs)
	}

	cmd := harmonica.NewCommand(cfg)
	if err := cmd.Execute(); err != nil {
		os.Exit(exitCodeFromError(err))
	}
}

// loadConfig reads the module configuration from the environment.
func loadConfig() (harmonica.Config, error) {
	var env envConfig
	if err := envconfig.Process("harmonica", &env); err != nil {
		return harmonica.Config{}, fmt.Errorf("reading environment: %w", err)
	}
	return harmonica.Config{
		DataDir:            env.DataDir,
		PreExistingDataDir: env.PreExistingDataDir,
		Mirrors:            map[string]string(env.Mirrors),
		RequestTimeout:     env.RequestTimeout,
	}, nil
}

// exitCodeFromError maps error types to exit codes.
func exitCodeFromError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, harmonica.ErrUnknownModel):
		return ExitUnknownModel
	case errors.Is(err, harmonica.ErrUnknownConstituent):
		return ExitUnknownConstituent
	case errors.Is(err, harmonica.ErrRetrieval):
		return ExitNetworkError
	case errors.Is(err, harmonica.ErrOutOfCoverage):
		return ExitOutOfCoverage
	case errors.Is(err, harmonica.ErrStorage):
		return ExitStorageError
	case errors.Is(err, harmonica.ErrDataset):
		return ExitDatasetError
	case errors.Is(err, harmonica.ErrInvalidLocation), errors.Is(err, harmonica.ErrUnknownAction),
		errors.Is(err, harmonica.ErrInvalidSignal):
		return ExitInvalidArgs
	default:
		return ExitGeneralError
	}
}
