package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kwv/beaconmesh/mesh"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const exampleFile = "mesh/testdata/example.txt"

// newTestApp applies opts and swaps in a quiet logger.
func newTestApp(t *testing.T, opts AppOptions) (*App, *bytes.Buffer) {
	t.Helper()
	if opts.CachePath == "" && !opts.NoCache {
		opts.CachePath = filepath.Join(t.TempDir(), "cache.json")
	}
	if opts.ConfigFile == "" {
		opts.ConfigFile = filepath.Join(t.TempDir(), "missing.yaml")
	}

	app := NewApp()
	require.NoError(t, app.ApplyOptions(opts))
	app.Logger = zap.NewNop()

	var out bytes.Buffer
	app.Out = &out
	return app, &out
}

// ---------------------------------------------------------------------------
// Answers
// ---------------------------------------------------------------------------

func TestRunPart_Example(t *testing.T) {
	tests := []struct {
		part Part
		want string
	}{
		{part: PartOne, want: "Part #1: 79\n"},
		{part: PartTwo, want: "Part #2: 3621\n"},
		{part: PartAll, want: "Part #1: 79\nPart #2: 3621\n"},
	}

	for _, tt := range tests {
		app, out := newTestApp(t, AppOptions{File: exampleFile})
		require.NoError(t, app.RunPart(context.Background(), tt.part))
		assert.Equal(t, tt.want, out.String())
	}
}

func TestRunPart_InlineValue(t *testing.T) {
	input := `--- scanner 0 ---\n1,2,3\n4,5,6\n`
	app, out := newTestApp(t, AppOptions{Value: input, NoCache: true})
	require.NoError(t, app.RunPart(context.Background(), PartAll))
	assert.Equal(t, "Part #1: 2\nPart #2: 0\n", out.String())
}

func TestRunPart_URL(t *testing.T) {
	data, err := os.ReadFile(exampleFile)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	app, out := newTestApp(t, AppOptions{URL: srv.URL, NoCache: true})
	require.NoError(t, app.RunPart(context.Background(), PartOne))
	assert.Equal(t, "Part #1: 79\n", out.String())
}

func TestRunPart_Disconnected(t *testing.T) {
	scanners, err := mesh.ParseScannerFile(exampleFile)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "partial.txt")
	require.NoError(t, os.WriteFile(path, []byte(mesh.FormatScanners(scanners[:3])), 0644))

	app, out := newTestApp(t, AppOptions{File: path})
	err = app.RunPart(context.Background(), PartAll)
	assert.ErrorIs(t, err, mesh.ErrIncompleteRegistration)
	assert.Empty(t, out.String(), "no partial answers on failure")
	assert.NoFileExists(t, app.Config.Cache)
	assert.Equal(t, 1.0, testutil.ToFloat64(app.Metrics.Runs.WithLabelValues(mesh.OutcomeFailed)))
}

// ---------------------------------------------------------------------------
// Input selection
// ---------------------------------------------------------------------------

func TestReadInput_Sources(t *testing.T) {
	tests := []struct {
		name    string
		opts    AppOptions
		wantErr string
	}{
		{name: "none", opts: AppOptions{}, wantErr: "no input"},
		{name: "file and value", opts: AppOptions{File: exampleFile, Value: "x"}, wantErr: "only one"},
		{name: "value and url", opts: AppOptions{Value: "x", URL: "http://x"}, wantErr: "only one"},
		{name: "missing file", opts: AppOptions{File: "does/not/exist.txt"}, wantErr: "reading input file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.NoCache = true
			app, _ := newTestApp(t, tt.opts)
			_, err := app.readInput(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// ---------------------------------------------------------------------------
// Config and cache
// ---------------------------------------------------------------------------

func TestApplyOptions_LoadsConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("registration:\n  rotations: 48\n  workers: 2\n"), 0644))

	app, _ := newTestApp(t, AppOptions{ConfigFile: path, CachePath: "override.json"})
	assert.Equal(t, 48, app.Config.Registration.Rotations)
	assert.Equal(t, 2, app.Config.Registration.Workers)
	assert.Equal(t, "override.json", app.Config.Cache)
}

func TestApplyOptions_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("registration:\n  rotations: 7\n"), 0644))

	app := NewApp()
	assert.Error(t, app.ApplyOptions(AppOptions{ConfigFile: path}))
}

func TestSolve_WritesAndReplaysCache(t *testing.T) {
	app, _ := newTestApp(t, AppOptions{File: exampleFile})

	first, err := app.Solve(context.Background())
	require.NoError(t, err)
	require.FileExists(t, app.Config.Cache)

	core, logs := observer.New(zap.DebugLevel)
	app.Logger = zap.New(core)

	second, err := app.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("replayed placement cache").Len())
	assert.Equal(t, first.Placements, second.Placements)
	assert.Equal(t, 79, second.BeaconCount())
	assert.Same(t, second, app.Store.Get())

	assert.Equal(t, 1.0, testutil.ToFloat64(app.Metrics.Runs.WithLabelValues(mesh.OutcomeRegistered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(app.Metrics.Runs.WithLabelValues(mesh.OutcomeReplayed)))
}

func TestSolve_StaleCacheFallsBack(t *testing.T) {
	app, _ := newTestApp(t, AppOptions{File: exampleFile})
	require.NoError(t, os.WriteFile(app.Config.Cache, []byte(`{"fingerprint":"stale","placements":[]}`), 0644))

	res, err := app.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 79, res.BeaconCount())

	cache, err := mesh.LoadCache(app.Config.Cache)
	require.NoError(t, err)
	assert.NotEqual(t, "stale", cache.Fingerprint, "cache should be rewritten")
}

func TestSolve_NoCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	app, _ := newTestApp(t, AppOptions{File: exampleFile, CachePath: path, NoCache: true})
	_, err := app.Solve(context.Background())
	require.NoError(t, err)
	assert.NoFileExists(t, path)
}

func TestSolve_NoCacheByDefault(t *testing.T) {
	input, err := filepath.Abs(exampleFile)
	require.NoError(t, err)
	dir := t.TempDir()
	t.Chdir(dir)

	app := NewApp()
	require.NoError(t, app.ApplyOptions(AppOptions{File: input, ConfigFile: "config.yaml"}))
	app.Logger = zap.NewNop()
	app.Out = io.Discard

	require.NoError(t, app.RunPart(context.Background(), PartAll))
	assert.Empty(t, app.Config.Cache)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "a plain run must not write into the working directory")
}

// ---------------------------------------------------------------------------
// Outputs
// ---------------------------------------------------------------------------

func TestRunExport(t *testing.T) {
	output := filepath.Join(t.TempDir(), "map.geojson")
	app, out := newTestApp(t, AppOptions{File: exampleFile, Output: output})

	require.NoError(t, app.RunExport(context.Background()))
	assert.FileExists(t, output)
	assert.Contains(t, out.String(), "79 beacons")
}

func TestRunRender_Formats(t *testing.T) {
	tests := []struct {
		format string
		magic  string
	}{
		{format: "svg", magic: "<svg"},
		{format: "png", magic: "\x89PNG"},
		{format: "raster", magic: "\x89PNG"},
		{format: "SVG", magic: "<svg"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			output := filepath.Join(t.TempDir(), "map.out")
			app, _ := newTestApp(t, AppOptions{File: exampleFile, Output: output, Format: tt.format})

			require.NoError(t, app.RunRender(context.Background()))
			data, err := os.ReadFile(output)
			require.NoError(t, err)
			assert.True(t, strings.Contains(string(data[:min(len(data), 512)]), tt.magic),
				"%s output does not start like %q", tt.format, tt.magic)
		})
	}
}

func TestRunRender_UnknownFormat(t *testing.T) {
	output := filepath.Join(t.TempDir(), "map.out")
	app, _ := newTestApp(t, AppOptions{File: exampleFile, Output: output, Format: "bmp"})

	err := app.RunRender(context.Background())
	require.Error(t, err)
	assert.NoFileExists(t, output)
}

type fakePublisher struct {
	published    *mesh.Result
	disconnected bool
	err          error
}

func (f *fakePublisher) PublishResult(res *mesh.Result) error {
	f.published = res
	return f.err
}

func (f *fakePublisher) Disconnect() { f.disconnected = true }

func TestRunPublish(t *testing.T) {
	app, out := newTestApp(t, AppOptions{File: exampleFile})
	app.Config.MQTT.Broker = "tcp://broker:1883"

	fake := &fakePublisher{}
	var gotCfg mesh.MQTTConfig
	app.connect = func(cfg mesh.MQTTConfig, _ *zap.Logger) (publishClient, error) {
		gotCfg = cfg
		return fake, nil
	}

	require.NoError(t, app.RunPublish(context.Background()))
	require.NotNil(t, fake.published)
	assert.Equal(t, 79, fake.published.BeaconCount())
	assert.True(t, fake.disconnected)
	assert.Equal(t, "tcp://broker:1883", gotCfg.Broker)
	assert.Contains(t, out.String(), "Published 5 scanners")
}

func TestRunPublish_Errors(t *testing.T) {
	app, _ := newTestApp(t, AppOptions{File: exampleFile})
	app.Config.MQTT.Broker = ""
	assert.Error(t, app.RunPublish(context.Background()), "missing broker")

	app.Config.MQTT.Broker = "tcp://broker:1883"
	app.connect = func(mesh.MQTTConfig, *zap.Logger) (publishClient, error) {
		return nil, errors.New("connection refused")
	}
	assert.Error(t, app.RunPublish(context.Background()))

	fake := &fakePublisher{err: errors.New("publish failed")}
	app.connect = func(mesh.MQTTConfig, *zap.Logger) (publishClient, error) {
		return fake, nil
	}
	assert.Error(t, app.RunPublish(context.Background()))
	assert.True(t, fake.disconnected)
}

func TestRunServe_StopsOnCancel(t *testing.T) {
	app, _ := newTestApp(t, AppOptions{File: exampleFile, Port: 0})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunServe(ctx) }()

	require.Eventually(t, app.Store.HasResult, 10*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("RunServe did not return after cancel")
	}
}
