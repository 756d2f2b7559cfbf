package harmonica

import "errors"

// Sentinel errors for atlas lookups and resource management.
// Use errors.Is() to check for specific error conditions.
var (
	// ErrUnknownModel indicates the model is not in the catalog.
	ErrUnknownModel = errors.New("harmonica: model not recognized")

	// ErrUnknownConstituent indicates a requested constituent is not provided
	// by the model. Returned before any file is fetched or opened.
	ErrUnknownConstituent = errors.New("harmonica: constituent not recognized")

	// ErrRetrieval indicates the remote endpoint was unreachable or the
	// downloaded archive could not be read. Downloads are not retried.
	ErrRetrieval = errors.New("harmonica: resource retrieval failed")

	// ErrConvergence indicates the harmonic fit did not converge.
	// A longer input signal usually helps.
	ErrConvergence = errors.New("harmonica: solver failed to converge")

	// ErrInvalidLocation indicates a latitude or longitude out of range.
	ErrInvalidLocation = errors.New("harmonica: invalid location")

	// ErrOutOfCoverage indicates the location falls outside the atlas grid.
	ErrOutOfCoverage = errors.New("harmonica: location outside atlas coverage")

	// ErrDataset indicates an atlas file could not be opened or read.
	ErrDataset = errors.New("harmonica: invalid dataset")

	// ErrStorage indicates a filesystem operation failed.
	ErrStorage = errors.New("harmonica: storage error")

	// ErrNoAnalyzer indicates a reconstruct or deconstruct call was made
	// without a harmonic analysis collaborator.
	ErrNoAnalyzer = errors.New("harmonica: no harmonic analyzer configured")

	// ErrInvalidSignal indicates water levels and times that cannot be
	// analyzed, e.g. mismatched lengths or unordered times.
	ErrInvalidSignal = errors.New("harmonica: invalid water level signal")

	// ErrUnknownAction indicates an unrecognized resource action.
	ErrUnknownAction = errors.New("harmonica: unknown resource action")
)
