package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kwv/beaconmesh/mesh"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// App encapsulates the application state and dependencies
type App struct {
	Config  *mesh.Config
	Logger  *zap.Logger
	Store   *mesh.ResultStore
	Metrics *mesh.Metrics
	Out     io.Writer

	// connect is swapped out in tests
	connect func(cfg mesh.MQTTConfig, logger *zap.Logger) (publishClient, error)

	// CLI Flags (effectively dependencies)
	InputFile  string
	InputValue string
	InputURL   string
	ConfigFile string
	CachePath  string
	NoCache    bool
	Verbose    bool
	OutputFile string
	Format     string
	HttpPort   int
}

// NewApp creates a new App instance
func NewApp() *App {
	// A private registry keeps repeated App construction (tests) from
	// colliding on the global one.
	metrics, err := mesh.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		panic(err)
	}
	return &App{
		Logger:  zap.NewNop(),
		Store:   mesh.NewResultStore(),
		Metrics: metrics,
		Out:     os.Stdout,
		connect: connectPublisher,
	}
}

// ApplyOptions applies CLI options to the App instance and builds the
// logger and configuration.
func (a *App) ApplyOptions(opts AppOptions) error {
	a.InputFile = opts.File
	a.InputValue = opts.Value
	a.InputURL = opts.URL
	a.ConfigFile = opts.ConfigFile
	a.CachePath = opts.CachePath
	a.NoCache = opts.NoCache
	a.Verbose = opts.Verbose
	a.OutputFile = opts.Output
	a.Format = opts.Format
	a.HttpPort = opts.Port

	logger, err := newLogger(a.Verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.Logger = logger

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.Config = cfg
	return nil
}

// Close flushes the logger.
func (a *App) Close() {
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// loadConfig reads the config file when present. A missing file falls back
// to defaults so the puzzle commands work without any setup.
func (a *App) loadConfig() (*mesh.Config, error) {
	cfg := mesh.DefaultConfig()
	if a.ConfigFile != "" {
		if _, err := os.Stat(a.ConfigFile); err == nil {
			loaded, err := mesh.LoadConfig(a.ConfigFile)
			if err != nil {
				return nil, err
			}
			cfg = loaded
			a.Logger.Debug("loaded config", zap.String("path", a.ConfigFile))
		}
	}
	cfg.ApplyEnv()
	if a.CachePath != "" {
		cfg.Cache = a.CachePath
	}
	return cfg, nil
}

// readInput returns the scanner text from exactly one of the input flags.
func (a *App) readInput(ctx context.Context) (string, error) {
	sources := 0
	for _, s := range []string{a.InputFile, a.InputValue, a.InputURL} {
		if s != "" {
			sources++
		}
	}
	switch {
	case sources == 0:
		return "", errors.New("no input: use --file, --value or --url")
	case sources > 1:
		return "", errors.New("only one of --file, --value or --url may be given")
	}

	switch {
	case a.InputFile != "":
		data, err := os.ReadFile(a.InputFile)
		if err != nil {
			return "", fmt.Errorf("reading input file: %w", err)
		}
		return string(data), nil
	case a.InputURL != "":
		return mesh.FetchInput(ctx, a.InputURL, mesh.WithSessionCookie(os.Getenv("AOC_SESSION")))
	default:
		// Literal values usually arrive with escaped newlines from a shell.
		return strings.ReplaceAll(a.InputValue, `\n`, "\n"), nil
	}
}

// Solve parses the input and registers every scanner, replaying the placement
// cache when it still matches.
func (a *App) Solve(ctx context.Context) (*mesh.Result, error) {
	if a.Config == nil {
		a.Config = mesh.DefaultConfig()
	}

	text, err := a.readInput(ctx)
	if err != nil {
		return nil, err
	}
	scanners, err := mesh.ParseScanners(text)
	if err != nil {
		return nil, err
	}

	reg, err := mesh.NewRegistrarFromConfig(a.Config.Registration, a.Logger)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	useCache := !a.NoCache && a.Config.Cache != ""
	if useCache {
		if res := a.replayCache(reg, scanners); res != nil {
			a.Metrics.ObserveResult(res, mesh.OutcomeReplayed, time.Since(start))
			a.Store.Set(res)
			return res, nil
		}
	}

	res, err := reg.Register(ctx, scanners)
	if err != nil {
		a.Metrics.ObserveFailure(time.Since(start))
		return nil, err
	}
	a.Metrics.ObserveResult(res, mesh.OutcomeRegistered, time.Since(start))
	a.Logger.Info("registration finished",
		zap.Int("scanners", len(scanners)),
		zap.Int("beacons", res.BeaconCount()),
		zap.Int("passes", res.Passes),
		zap.Duration("elapsed", time.Since(start)))

	if useCache {
		if err := mesh.SaveCache(a.Config.Cache, reg.NewCache(scanners, res)); err != nil {
			a.Logger.Warn("could not save placement cache", zap.Error(err))
		}
	}
	a.Store.Set(res)
	return res, nil
}

// replayCache returns nil whenever the cache is absent or unusable; the caller
// then registers from scratch.
func (a *App) replayCache(reg *mesh.Registrar, scanners []mesh.Scanner) *mesh.Result {
	cache, err := mesh.LoadCache(a.Config.Cache)
	if err != nil {
		a.Logger.Warn("ignoring placement cache", zap.String("path", a.Config.Cache), zap.Error(err))
		return nil
	}
	if cache == nil {
		return nil
	}
	res, err := reg.Replay(scanners, cache)
	if err != nil {
		a.Logger.Debug("placement cache not reusable", zap.Error(err))
		return nil
	}
	a.Logger.Debug("replayed placement cache", zap.String("path", a.Config.Cache))
	return res
}

// RunPart prints one or both answers.
func (a *App) RunPart(ctx context.Context, part Part) error {
	res, err := a.Solve(ctx)
	if err != nil {
		return err
	}
	if part == PartAll || part == PartOne {
		fmt.Fprintf(a.Out, "Part #1: %d\n", res.BeaconCount())
	}
	if part == PartAll || part == PartTwo {
		fmt.Fprintf(a.Out, "Part #2: %d\n", res.MaxScannerDistance())
	}
	return nil
}

// RunExport writes the assembled map as GeoJSON.
func (a *App) RunExport(ctx context.Context) error {
	res, err := a.Solve(ctx)
	if err != nil {
		return err
	}
	if err := mesh.SaveGeoJSON(res, a.OutputFile); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Wrote %s (%d beacons, %d scanners)\n", a.OutputFile, res.BeaconCount(), len(res.Placements))
	return nil
}

// RunRender renders a top-down view in the requested format.
func (a *App) RunRender(ctx context.Context) error {
	res, err := a.Solve(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch strings.ToLower(a.Format) {
	case "svg":
		err = mesh.NewVectorRenderer(res, a.Config.Render).RenderToSVG(&buf)
	case "png":
		err = mesh.NewVectorRenderer(res, a.Config.Render).RenderToPNG(&buf)
	case "raster":
		err = mesh.NewRasterRenderer(res, a.Config.Render).RenderToPNG(&buf)
	default:
		return fmt.Errorf("unknown render format %q (want svg, png or raster)", a.Format)
	}
	if err != nil {
		return fmt.Errorf("rendering map: %w", err)
	}

	if err := os.WriteFile(a.OutputFile, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", a.OutputFile, err)
	}
	fmt.Fprintf(a.Out, "Wrote %s\n", a.OutputFile)
	return nil
}

// publishClient is the part of the MQTT stack RunPublish needs.
type publishClient interface {
	PublishResult(res *mesh.Result) error
	Disconnect()
}

type mqttPublisher struct {
	*mesh.Publisher
	disconnect func()
}

func (p *mqttPublisher) Disconnect() { p.disconnect() }

func connectPublisher(cfg mesh.MQTTConfig, logger *zap.Logger) (publishClient, error) {
	client, err := mesh.ConnectMQTT(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &mqttPublisher{
		Publisher:  mesh.NewPublisher(client, cfg.PublishPrefix, logger),
		disconnect: func() { client.Disconnect(250) },
	}, nil
}

// RunPublish registers the input and publishes the result to MQTT.
func (a *App) RunPublish(ctx context.Context) error {
	if a.Config == nil || a.Config.MQTT.Broker == "" {
		return errors.New("mqtt.broker is not configured (config file or MQTT_BROKER)")
	}
	res, err := a.Solve(ctx)
	if err != nil {
		return err
	}

	pub, err := a.connect(a.Config.MQTT, a.Logger)
	if err != nil {
		return err
	}
	defer pub.Disconnect()

	if err := pub.PublishResult(res); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Published %d scanners to %s\n", len(res.Placements), a.Config.MQTT.Broker)
	return nil
}

// RunServe registers the input once and serves the result until ctx is
// cancelled.
func (a *App) RunServe(ctx context.Context) error {
	if _, err := a.Solve(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.HttpPort),
		Handler:           newHTTPServer(a.Store, a.Config.Render, a.Metrics, a.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("HTTP server listening", zap.Int("port", a.HttpPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return <-errCh
}
