package harmonica

import (
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config configures the harmonica module.
type Config struct {
	// DataDir overrides the default directory of the managed download cache.
	// If empty, uses platform-appropriate default.
	// Can also be set via environment variable: HARMONICA_DATA_DIR
	DataDir string

	// PreExistingDataDir is an optional read-only tree laid out like the
	// cache ({dir}/{model}/{relative path}). Files found there are used in
	// place and never copied into the cache.
	PreExistingDataDir string

	// Mirrors overrides the remote URL of a model, keyed by model name.
	// Archived models expect the archive URL, others a base URL that the
	// relative resource path is appended to.
	Mirrors map[string]string

	// RequestTimeout bounds each remote fetch, including the body transfer.
	// Zero means no limit beyond the context passed by the caller.
	RequestTimeout time.Duration
}

// Location is a geographic point. Longitude may be given in [-180, 180) or
// [0, 360); it is normalized to [0, 360) before grid lookups.
type Location struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lt=360"`
}

var validate = validator.New()

// Validate reports ErrInvalidLocation if the coordinates are out of range.
func (l Location) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	return nil
}

// normalizedLongitude returns the longitude shifted into [0, 360).
func (l Location) normalizedLongitude() float64 {
	lon := math.Mod(l.Longitude, 360)
	if lon < 0 {
		lon += 360
	}
	return lon
}

// String returns "lat, lon" with six decimals.
func (l Location) String() string {
	return fmt.Sprintf("%.6f, %.6f", l.Latitude, l.Longitude)
}

// PhaseConvention selects the range of returned phases.
type PhaseConvention int

const (
	// PhaseSigned reports phases in [-180, 180).
	PhaseSigned PhaseConvention = iota

	// PhasePositive reports phases in [0, 360).
	PhasePositive
)

// String returns "signed" or "positive".
func (p PhaseConvention) String() string {
	if p == PhasePositive {
		return "positive"
	}
	return "signed"
}

// apply maps a phase in degrees onto the convention.
func (p PhaseConvention) apply(deg float64) float64 {
	switch p {
	case PhasePositive:
		if deg < 0 {
			deg += 360
		}
		if deg >= 360 {
			deg -= 360
		}
	default:
		if deg >= 180 {
			deg -= 360
		}
	}
	return deg
}

// ConstituentRecord holds the local harmonic description of one constituent.
type ConstituentRecord struct {
	// Name is the uppercase constituent name, e.g. "M2".
	Name string `json:"constituent"`

	// Amplitude is in meters.
	Amplitude float64 `json:"amplitude"`

	// Phase is in degrees, in the range of the requested PhaseConvention.
	Phase float64 `json:"phase"`

	// Speed is in degrees per hour.
	Speed float64 `json:"speed"`
}

// WaterLevel is one sample of a synthesized tide series.
type WaterLevel struct {
	Time  time.Time `json:"time"`
	Level float64   `json:"water_level"`
}

// DownloadProgress reports the state of a remote fetch.
type DownloadProgress struct {
	// Model is the model being downloaded.
	Model string

	// URL is the remote location being fetched.
	URL string

	// BytesCompleted is the number of bytes read so far.
	BytesCompleted int64

	// BytesTotal is the expected size, or -1 when the server does not say.
	BytesTotal int64

	// Done is set on the final report of a fetch.
	Done bool
}
