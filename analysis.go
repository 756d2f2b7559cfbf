package harmonica

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// offsetConstituent names the pseudo-constituent carrying a mean level
// offset in synthesis.
const offsetConstituent = "Z0"

// Component is the harmonic description exchanged with an Analyzer.
type Component struct {
	Name      string
	Speed     float64 // degrees per hour
	Amplitude float64
	Phase     float64 // degrees
}

// Analyzer synthesizes and fits harmonic tide series. No implementation
// ships with this module; supply one with WithAnalyzer.
type Analyzer interface {
	// Synthesize evaluates the sum of components at each time.
	Synthesize(components []Component, times []time.Time) ([]float64, error)

	// Fit estimates amplitude and phase for each candidate from observed
	// levels. An error means the fit did not converge.
	Fit(levels []float64, times []time.Time, candidates []Component) ([]Component, error)
}

// ReconstructRequest describes a tide synthesis at one location.
type ReconstructRequest struct {
	Location Location

	// Model defaults to DefaultModel.
	Model string

	// Constituents defaults to every constituent of the model.
	Constituents []string

	// Times are the instants to evaluate, in UTC.
	Times []time.Time

	Phase PhaseConvention

	// Offset, when set, adds a Z0 component with this phase.
	Offset *float64
}

// DeconstructRequest describes a harmonic fit of an observed series.
type DeconstructRequest struct {
	Levels []float64
	Times  []time.Time

	// Constituents defaults to every constituent in the speed table. Names
	// without a known speed are ignored.
	Constituents []string

	// Periods is the number of cycles a constituent must complete over the
	// signal to be fitted. Zero means DefaultPeriods.
	Periods int

	Phase PhaseConvention
}

// validateSignal checks that levels and times line up and times increase.
func validateSignal(levels []float64, times []time.Time) error {
	if len(levels) != len(times) {
		return fmt.Errorf("%w: %d levels for %d times", ErrInvalidSignal, len(levels), len(times))
	}
	if len(times) < 2 {
		return fmt.Errorf("%w: need at least two samples", ErrInvalidSignal)
	}
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return fmt.Errorf("%w: times not increasing at index %d", ErrInvalidSignal, i)
		}
	}
	return nil
}

// fitCandidates selects the constituents that complete at least periods
// cycles over span. Unknown names are dropped.
func fitCandidates(names []string, span time.Duration, periods int) []Component {
	if len(names) == 0 {
		names = knownConstituents()
	}

	hours := span.Hours()
	seen := make(map[string]bool)
	var out []Component
	for _, n := range names {
		name := strings.ToUpper(strings.TrimSpace(n))
		speed, ok := Speed(name)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		if speed*hours/360 < float64(periods) {
			continue
		}
		out = append(out, Component{Name: name, Speed: speed})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// fitTable converts fitted components into a table, normalizing phase.
func fitTable(fitted []Component, phase PhaseConvention) *ConstituentTable {
	table := NewConstituentTable()
	for _, c := range fitted {
		name := strings.ToUpper(c.Name)
		if name == offsetConstituent {
			continue
		}
		speed := c.Speed
		if s, ok := Speed(name); ok {
			speed = s
		}
		deg := math.Mod(c.Phase, 360)
		if deg < 0 {
			deg += 360
		}
		table.Set(ConstituentRecord{
			Name:      name,
			Amplitude: c.Amplitude,
			Phase:     phase.apply(deg),
			Speed:     speed,
		})
	}
	return table
}

// convergenceError marks any fit failure as ErrConvergence.
func convergenceError(err error) error {
	if errors.Is(err, ErrConvergence) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrConvergence, err)
}
