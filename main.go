package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags
var Version = "dev"

// Part selects which answer to print.
type Part int

const (
	PartAll Part = iota
	PartOne
	PartTwo
)

// Runner is the behaviour the CLI dispatches to. App implements it; tests
// substitute a recorder.
type Runner interface {
	ApplyOptions(opts AppOptions) error
	RunPart(ctx context.Context, part Part) error
	RunExport(ctx context.Context) error
	RunRender(ctx context.Context) error
	RunPublish(ctx context.Context) error
	RunServe(ctx context.Context) error
	Close()
}

// AppOptions carries the parsed command-line flags.
type AppOptions struct {
	File       string
	Value      string
	URL        string
	ConfigFile string
	CachePath  string
	NoCache    bool
	Verbose    bool
	Output     string
	Format     string
	Port       int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(NewApp()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// newRootCmd wires every subcommand to the runner.
func newRootCmd(app Runner) *cobra.Command {
	var opts AppOptions

	root := &cobra.Command{
		Use:   "beaconmesh",
		Short: "Assemble a beacon map from overlapping 3D scanner reports",
		Long: `beaconmesh registers scanner reports against scanner 0: each scanner is
rotated through the axis-aligned orientations and translated until at least
12 of its beacons coincide with beacons already placed.

Input is read from --file, --value or --url (exactly one).`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.ApplyOptions(opts)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Close()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.File, "file", "f", "", "Input filename")
	pf.StringVarP(&opts.Value, "value", "v", "", "Input value")
	pf.StringVar(&opts.URL, "url", "", "Fetch input from URL (session cookie from AOC_SESSION)")
	pf.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	pf.StringVar(&opts.CachePath, "cache", "", "Path to placement cache (overrides config; no cache when unset)")
	pf.BoolVar(&opts.NoCache, "no-cache", false, "Do not read or write the placement cache")
	pf.BoolVar(&opts.Verbose, "verbose", false, "Enable debug logging")

	partCmd := func(use, short string, part Part) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.RunPart(cmd.Context(), part)
			},
		}
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the assembled map as GeoJSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunExport(cmd.Context())
		},
	}
	exportCmd.Flags().StringVarP(&opts.Output, "output", "o", "beacon-map.geojson", "Output file")

	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Render a top-down view of the assembled map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunRender(cmd.Context())
		},
	}
	renderCmd.Flags().StringVarP(&opts.Output, "output", "o", "beacon-map.svg", "Output file")
	renderCmd.Flags().StringVar(&opts.Format, "format", "svg", "Render format: svg, png or raster")

	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish the assembled map to MQTT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunPublish(cmd.Context())
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assembled map over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunServe(cmd.Context())
		},
	}
	serveCmd.Flags().IntVar(&opts.Port, "port", 8080, "HTTP server port")

	root.AddCommand(
		partCmd("part1", "Get 1st solution: number of distinct beacons", PartOne),
		partCmd("part2", "Get 2nd solution: largest distance between scanners", PartTwo),
		partCmd("all", "Get all solutions", PartAll),
		exportCmd,
		renderCmd,
		publishCmd,
		serveCmd,
	)
	return root
}
