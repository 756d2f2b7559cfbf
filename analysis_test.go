package harmonica

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestFitCandidates(t *testing.T) {
	tests := []struct {
		name    string
		names   []string
		span    time.Duration
		periods int
		want    []string
	}{
		{
			name:    "filters slow constituents",
			names:   []string{"M2", "K1", "MF", "SA"},
			span:    30 * 24 * time.Hour,
			periods: 6,
			want:    []string{"K1", "M2"},
		},
		{
			name:    "normalizes and deduplicates",
			names:   []string{" m2", "M2", "s2", "unknown"},
			span:    10 * 24 * time.Hour,
			periods: 1,
			want:    []string{"M2", "S2"},
		},
		{
			name:    "fortnightly fits, monthly does not",
			names:   []string{"MF", "MM"},
			span:    20 * 24 * time.Hour,
			periods: 1,
			want:    []string{"MF"},
		},
		{
			name:    "nothing qualifies",
			names:   []string{"M2"},
			span:    12 * time.Hour,
			periods: 6,
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, c := range fitCandidates(tt.names, tt.span, tt.periods) {
				got = append(got, c.Name)
				if speed, _ := Speed(c.Name); c.Speed != speed {
					t.Errorf("%s speed = %g, want %g", c.Name, c.Speed, speed)
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("fitCandidates() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("default set", func(t *testing.T) {
		got := fitCandidates(nil, 2*365*24*time.Hour, 1)
		if len(got) != len(knownConstituents()) {
			t.Errorf("got %d candidates, want every known constituent (%d)", len(got), len(knownConstituents()))
		}
	})
}

func TestFitTable(t *testing.T) {
	fitted := []Component{
		{Name: "m2", Speed: 1, Amplitude: 0.5, Phase: 725},
		{Name: "Z0", Amplitude: 0.1},
		{Name: "X1", Speed: 12.5, Amplitude: 0.01, Phase: -190},
	}

	tests := []struct {
		phase PhaseConvention
		want  []ConstituentRecord
	}{
		{PhaseSigned, []ConstituentRecord{
			{Name: "M2", Amplitude: 0.5, Phase: 5, Speed: 28.984104},
			{Name: "X1", Amplitude: 0.01, Phase: 170, Speed: 12.5},
		}},
		{PhasePositive, []ConstituentRecord{
			{Name: "M2", Amplitude: 0.5, Phase: 5, Speed: 28.984104},
			{Name: "X1", Amplitude: 0.01, Phase: 170, Speed: 12.5},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.phase.String(), func(t *testing.T) {
			got := fitTable(fitted, tt.phase).Records()
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("fitTable() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("signed wraps upper half", func(t *testing.T) {
		table := fitTable([]Component{{Name: "K1", Phase: 200}}, PhaseSigned)
		if rec, _ := table.Get("K1"); rec.Phase != -160 {
			t.Errorf("K1 phase = %g, want -160", rec.Phase)
		}
	})
}

func TestValidateSignal(t *testing.T) {
	times := hourly(4)
	tests := []struct {
		name    string
		levels  []float64
		times   []time.Time
		wantErr bool
	}{
		{"valid", []float64{1, 2, 3, 4}, times, false},
		{"mismatch", []float64{1, 2, 3}, times, true},
		{"empty", nil, nil, true},
		{"repeated time", []float64{1, 2}, []time.Time{times[0], times[0]}, true},
		{"decreasing", []float64{1, 2}, []time.Time{times[1], times[0]}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSignal(tt.levels, tt.times)
			if tt.wantErr && !errors.Is(err, ErrInvalidSignal) {
				t.Errorf("validateSignal() error = %v, want ErrInvalidSignal", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("validateSignal() error = %v", err)
			}
		})
	}
}

func TestConvergenceError(t *testing.T) {
	wrapped := convergenceError(errors.New("singular"))
	if !errors.Is(wrapped, ErrConvergence) {
		t.Errorf("convergenceError() = %v, want ErrConvergence", wrapped)
	}
	if got := convergenceError(ErrConvergence); got != ErrConvergence {
		t.Errorf("convergenceError(ErrConvergence) = %v, want it unchanged", got)
	}
}
