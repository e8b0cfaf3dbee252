package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

type mockApp struct {
	opts   AppOptions
	called map[string]bool
	part   Part
	closed bool
}

func newMockApp() *mockApp {
	return &mockApp{
		called: make(map[string]bool),
	}
}

func (m *mockApp) ApplyOptions(opts AppOptions) error { m.opts = opts; return nil }
func (m *mockApp) RunPart(_ context.Context, p Part) error {
	m.called["RunPart"] = true
	m.part = p
	return nil
}
func (m *mockApp) RunExport(context.Context) error  { m.called["RunExport"] = true; return nil }
func (m *mockApp) RunRender(context.Context) error  { m.called["RunRender"] = true; return nil }
func (m *mockApp) RunPublish(context.Context) error { m.called["RunPublish"] = true; return nil }
func (m *mockApp) RunServe(context.Context) error   { m.called["RunServe"] = true; return nil }
func (m *mockApp) Close()                           { m.closed = true }

func execute(t *testing.T, app Runner, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRun_Commands(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedCalled string
		verifyOpts     func(*testing.T, *mockApp)
	}{
		{
			name:           "Part1",
			args:           []string{"part1", "--file", "input.txt"},
			expectedCalled: "RunPart",
			verifyOpts: func(t *testing.T, m *mockApp) {
				if m.opts.File != "input.txt" {
					t.Errorf("expected File input.txt, got %s", m.opts.File)
				}
				if m.part != PartOne {
					t.Errorf("expected PartOne, got %d", m.part)
				}
			},
		},
		{
			name:           "Part2ShortValue",
			args:           []string{"part2", "-v", "scanner-text"},
			expectedCalled: "RunPart",
			verifyOpts: func(t *testing.T, m *mockApp) {
				if m.opts.Value != "scanner-text" {
					t.Errorf("expected Value, got %q", m.opts.Value)
				}
				if m.part != PartTwo {
					t.Errorf("expected PartTwo, got %d", m.part)
				}
			},
		},
		{
			name:           "All",
			args:           []string{"all", "-f", "in.txt", "--verbose", "--no-cache"},
			expectedCalled: "RunPart",
			verifyOpts: func(t *testing.T, m *mockApp) {
				if m.part != PartAll {
					t.Errorf("expected PartAll, got %d", m.part)
				}
				if !m.opts.Verbose || !m.opts.NoCache {
					t.Errorf("expected Verbose and NoCache, got %+v", m.opts)
				}
			},
		},
		{
			name:           "Export",
			args:           []string{"export", "-f", "in.txt", "--output", "out.geojson"},
			expectedCalled: "RunExport",
			verifyOpts: func(t *testing.T, m *mockApp) {
				if m.opts.Output != "out.geojson" {
					t.Errorf("expected Output out.geojson, got %s", m.opts.Output)
				}
			},
		},
		{
			name:           "RenderDefaults",
			args:           []string{"render", "-f", "in.txt"},
			expectedCalled: "RunRender",
			verifyOpts: func(t *testing.T, m *mockApp) {
				if m.opts.Format != "svg" || m.opts.Output != "beacon-map.svg" {
					t.Errorf("unexpected render defaults: %+v", m.opts)
				}
			},
		},
		{
			name:           "RenderPNG",
			args:           []string{"render", "-f", "in.txt", "--format", "png", "-o", "map.png"},
			expectedCalled: "RunRender",
			verifyOpts: func(t *testing.T, m *mockApp) {
				if m.opts.Format != "png" || m.opts.Output != "map.png" {
					t.Errorf("unexpected render options: %+v", m.opts)
				}
			},
		},
		{
			name:           "Publish",
			args:           []string{"publish", "--url", "http://example.test/input", "--config", "c.yaml"},
			expectedCalled: "RunPublish",
			verifyOpts: func(t *testing.T, m *mockApp) {
				if m.opts.URL != "http://example.test/input" {
					t.Errorf("expected URL, got %s", m.opts.URL)
				}
				if m.opts.ConfigFile != "c.yaml" {
					t.Errorf("expected ConfigFile c.yaml, got %s", m.opts.ConfigFile)
				}
			},
		},
		{
			name:           "Serve",
			args:           []string{"serve", "-f", "in.txt", "--port", "9090", "--cache", "x.json"},
			expectedCalled: "RunServe",
			verifyOpts: func(t *testing.T, m *mockApp) {
				if m.opts.Port != 9090 {
					t.Errorf("expected Port 9090, got %d", m.opts.Port)
				}
				if m.opts.CachePath != "x.json" {
					t.Errorf("expected CachePath x.json, got %s", m.opts.CachePath)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockApp()
			if _, err := execute(t, m, tt.args...); err != nil {
				t.Fatalf("execute() error: %v", err)
			}

			if !m.called[tt.expectedCalled] {
				t.Errorf("expected %s to be called, called: %v", tt.expectedCalled, m.called)
			}
			if len(m.called) != 1 {
				t.Errorf("expected exactly one run method, called: %v", m.called)
			}
			if !m.closed {
				t.Error("expected Close to be called")
			}
			if tt.verifyOpts != nil {
				tt.verifyOpts(t, m)
			}
		})
	}
}

func TestRun_Version(t *testing.T) {
	m := newMockApp()
	out, err := execute(t, m, "--version")
	if err != nil {
		t.Fatalf("execute() error: %v", err)
	}
	if !strings.Contains(out, Version) {
		t.Errorf("version output %q does not contain %q", out, Version)
	}
	if len(m.called) != 0 {
		t.Errorf("--version should not run anything, called: %v", m.called)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	if _, err := execute(t, newMockApp(), "part3"); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestRun_RejectsArgs(t *testing.T) {
	if _, err := execute(t, newMockApp(), "part1", "extra"); err == nil {
		t.Error("expected error for positional arguments")
	}
}
