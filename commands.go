package harmonica

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewCommand creates the Cobra command tree of the harmonica CLI.
// The returned command can be executed directly or added to a parent CLI.
//
// Commands provided:
//   - constituents LAT LON [-M model] [-C cons] [-P] [-O file]
//   - download MODEL
//   - resources download|remove MODEL [--yes]
//   - models
//
// Global flags: --json, --quiet, --verbose, --timeout
func NewCommand(cfg Config, opts ...ManagerOption) *cobra.Command {
	var (
		jsonOutput bool
		quiet      bool
		verbose    bool
		timeout    time.Duration
	)

	// Manager will be created in PersistentPreRunE
	var mgr Manager

	cmd := &cobra.Command{
		Use:   "harmonica",
		Short: "Tidal constituents from global tide atlases",
		Long:  "Interpolate tidal harmonic constituents at a location from TPXO tide atlases and manage the local atlas cache.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip manager creation for help commands
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			c := cfg
			if cmd.Flags().Changed("timeout") {
				c.RequestTimeout = timeout
			}

			mopts := append([]ManagerOption(nil), opts...)
			if verbose {
				logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
				mopts = append(mopts, WithLogger(logger))
			}
			if !quiet && !jsonOutput {
				mopts = append(mopts, WithProgress(newProgressPrinter(cmd.ErrOrStderr()).update))
			}

			var err error
			mgr, err = NewManager(c, mopts...)
			if err != nil {
				return fmt.Errorf("failed to initialize manager: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Limit each remote fetch (0 means no limit)")

	// Add subcommands
	cmd.AddCommand(constituentsCmd(&mgr, &jsonOutput, &quiet))
	cmd.AddCommand(downloadCmd(&mgr, &quiet))
	cmd.AddCommand(resourcesCmd(&mgr, &quiet))
	cmd.AddCommand(modelsCmd(&mgr, &jsonOutput))

	return cmd
}

func constituentsCmd(mgr *Manager, jsonOutput, quiet *bool) *cobra.Command {
	var (
		model    string
		cons     []string
		positive bool
		output   string
	)

	cmd := &cobra.Command{
		Use:   "constituents LAT LON",
		Short: "Get tidal constituents at a location",
		Long: "Get the amplitude, phase and speed of tidal constituents at a location.\n" +
			"Longitude may be given in [-180, 180) or [0, 360). Put -- before negative coordinates.",
		Example: "  harmonica constituents -M tpxo8 -C M2,K1 -- 38.375789 -74.943915",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args[0], args[1])
			if err != nil {
				return err
			}

			phase := PhaseSigned
			if positive {
				phase = PhasePositive
			}

			table, err := (*mgr).GetComponents(cmd.Context(), loc, model, cons, phase)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("%w: %v", ErrStorage, err)
				}
				defer f.Close()
				w = f
			}
			if err := outputConstituents(w, table, *jsonOutput); err != nil {
				return err
			}

			if output != "" && !*quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d constituents to %s\n", table.Len(), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "M", DefaultModel, "Atlas model")
	cmd.Flags().StringSliceVarP(&cons, "cons", "C", nil, "Constituents to report (default all)")
	cmd.Flags().BoolVarP(&positive, "positive-phase", "P", false, "Report phase in [0, 360) instead of [-180, 180)")
	cmd.Flags().StringVarP(&output, "output", "O", "", "Write the table to a file")
	return cmd
}

func downloadCmd(mgr *Manager, quiet *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "download [MODEL]",
		Short:   "Download model resources",
		Long:    "Download and pre-position every resource of a model for later lookups.",
		Example: "  harmonica download tpxo8",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model := DefaultModel
			if len(args) == 1 {
				model = args[0]
			}
			if err := (*mgr).DownloadModel(cmd.Context(), model); err != nil {
				return err
			}
			if !*quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Model %s is available locally\n", model)
			}
			return nil
		},
	}
}

func resourcesCmd(mgr *Manager, quiet *bool) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "resources download|remove MODEL",
		Short:   "Manage model resources",
		Long:    "Download or remove the cached resources of a model.",
		Example: "  harmonica resources download tpxo8",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := ParseResourceAction(args[0])
			if err != nil {
				return err
			}
			model := args[1]

			// Confirmation prompt
			if action == ActionRemove && !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Remove cached resources of %s? [y/N]: ", model)
				if !confirmPrompt(cmd.InOrStdin()) {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			if err := (*mgr).Apply(cmd.Context(), action, model); err != nil {
				return err
			}
			if !*quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Completed %s of %s\n", action, model)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

func modelsCmd(mgr *Manager, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List available models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return outputModels(cmd.OutOrStdout(), (*mgr).Models(), *jsonOutput)
		},
	}
}

// parseLocation parses positional latitude and longitude arguments.
func parseLocation(latArg, lonArg string) (Location, error) {
	lat, err := strconv.ParseFloat(latArg, 64)
	if err != nil {
		return Location{}, fmt.Errorf("%w: latitude %q", ErrInvalidLocation, latArg)
	}
	lon, err := strconv.ParseFloat(lonArg, 64)
	if err != nil {
		return Location{}, fmt.Errorf("%w: longitude %q", ErrInvalidLocation, lonArg)
	}
	loc := Location{Latitude: lat, Longitude: lon}
	return loc, loc.Validate()
}

// confirmPrompt reads a y/N answer from r.
func confirmPrompt(r io.Reader) bool {
	reader := bufio.NewReader(r)
	response, err := reader.ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// outputConstituents writes the table as tab-separated values or JSON.
func outputConstituents(w io.Writer, table *ConstituentTable, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(table)
	}

	if _, err := fmt.Fprintln(w, "constituent\tamplitude\tphase\tspeed"); err != nil {
		return err
	}
	for _, rec := range table.Records() {
		_, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rec.Name,
			strconv.FormatFloat(rec.Amplitude, 'g', -1, 64),
			strconv.FormatFloat(rec.Phase, 'g', -1, 64),
			strconv.FormatFloat(rec.Speed, 'g', -1, 64))
		if err != nil {
			return err
		}
	}
	return nil
}

type modelJSON struct {
	Name            string   `json:"name"`
	URL             string   `json:"url"`
	Archive         string   `json:"archive"`
	UnitsMultiplier float64  `json:"units_multiplier"`
	Groups          int      `json:"groups"`
	Constituents    []string `json:"constituents"`
}

func outputModels(w io.Writer, models []Model, asJSON bool) error {
	if asJSON {
		out := make([]modelJSON, 0, len(models))
		for _, m := range models {
			out = append(out, modelJSON{
				Name:            m.Name,
				URL:             m.URL,
				Archive:         m.Archive.String(),
				UnitsMultiplier: m.UnitsMultiplier,
				Groups:          len(m.Groups),
				Constituents:    m.Constituents(),
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tARCHIVE\tGROUPS\tCONSTITUENTS")
	for _, m := range models {
		name := m.Name
		if name == DefaultModel {
			name += " (default)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", name, m.Archive, len(m.Groups), strings.Join(m.Constituents(), ","))
	}
	return tw.Flush()
}

// progressPrinter renders download progress on a terminal line.
type progressPrinter struct {
	w     io.Writer
	mu    sync.Mutex
	url   string
	start time.Time
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) update(dp DownloadProgress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if dp.URL != p.url {
		p.url = dp.URL
		p.start = time.Now()
	}
	renderProgress(p.w, dp.BytesCompleted, dp.BytesTotal, p.start)
	if dp.Done {
		fmt.Fprintln(p.w)
		p.url = ""
	}
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// renderProgress draws one progress line. Without a known total only the
// byte count and speed are shown.
// Format: Downloading [============>                 ] 45% (5.2 MB/s, elapsed: 30s)
func renderProgress(w io.Writer, current, total int64, startTime time.Time) {
	elapsed := time.Since(startTime)

	var speed float64
	if elapsed.Seconds() > 0 && current > 0 {
		speed = float64(current) / elapsed.Seconds()
	}

	if total <= 0 {
		fmt.Fprintf(w, "\r\x1b[KDownloading %s (%s, elapsed: %s)",
			formatSize(current), formatSpeed(speed), formatDuration(elapsed))
		return
	}

	pct := float64(current) / float64(total) * 100

	const barWidth = 30
	filled := int(pct / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}

	var bar string
	if filled >= barWidth {
		bar = strings.Repeat("=", barWidth)
	} else if filled > 0 {
		bar = strings.Repeat("=", filled) + ">" + strings.Repeat(" ", barWidth-filled-1)
	} else {
		bar = ">" + strings.Repeat(" ", barWidth-1)
	}

	fmt.Fprintf(w, "\r\x1b[KDownloading [%s] %.0f%% of %s (%s, elapsed: %s)",
		bar, pct, formatSize(total), formatSpeed(speed), formatDuration(elapsed))
}

// formatSpeed formats bytes per second as KB/s or MB/s.
func formatSpeed(bytesPerSec float64) string {
	const (
		KB = 1024
		MB = KB * 1024
	)

	if bytesPerSec >= MB {
		return fmt.Sprintf("%.1f MB/s", bytesPerSec/MB)
	}
	if bytesPerSec >= KB {
		return fmt.Sprintf("%.1f KB/s", bytesPerSec/KB)
	}
	return fmt.Sprintf("%.0f B/s", bytesPerSec)
}

// formatDuration formats a duration as human-readable text (e.g., "5s", "2m 30s", "1h 5m").
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	d = d.Round(time.Second)

	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	if hours > 0 {
		if mins > 0 {
			return fmt.Sprintf("%dh %dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	if mins > 0 {
		if secs > 0 {
			return fmt.Sprintf("%dm %ds", mins, secs)
		}
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%ds", secs)
}
