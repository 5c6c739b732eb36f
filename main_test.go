package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sidelinkmon/monitor"
	"sidelinkmon/sidelink"
	"sidelinkmon/stats"
	"sidelinkmon/throughput"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// Purpose: Verify the --config flag wins over the environment.
// Key aspects: Both candidates exist; the flag path must be reported.
// Upstream: go test execution.
// Downstream: loadMonitorConfig.
func TestLoadMonitorConfigFlagWinsOverEnv(t *testing.T) {
	dir := t.TempDir()
	flagPath := writeConfig(t, dir, "flag.yaml", "server:\n  name: From Flag\n")
	envPath := writeConfig(t, dir, "env.yaml", "server:\n  name: From Env\n")
	t.Setenv(envConfigPath, envPath)

	cfg, source, err := loadMonitorConfig(flagPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if source != flagPath || cfg.Server.Name != "From Flag" {
		t.Fatalf("expected flag config, got source=%s name=%q", source, cfg.Server.Name)
	}
}

func TestLoadMonitorConfigSkipsMissingFlagPath(t *testing.T) {
	dir := t.TempDir()
	envPath := writeConfig(t, dir, "env.yaml", "server:\n  name: From Env\n")
	t.Setenv(envConfigPath, envPath)

	cfg, source, err := loadMonitorConfig(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if source != envPath || cfg.Server.Name != "From Env" {
		t.Fatalf("expected env config, got source=%s name=%q", source, cfg.Server.Name)
	}
}

// Purpose: Verify a missing config everywhere falls back to defaults.
// Key aspects: Runs from an empty directory so data/config.yaml is absent.
// Upstream: go test execution.
// Downstream: loadMonitorConfig, config.Default.
func TestLoadMonitorConfigFallsBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(envConfigPath, "")

	cfg, source, err := loadMonitorConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if source != "built-in defaults" {
		t.Fatalf("expected defaults, got %s", source)
	}
	if cfg.Server.Listen != "0.0.0.0:5000" || cfg.History.Capacity != 120 {
		t.Fatalf("unexpected defaults %+v", cfg.Server)
	}
}

func TestLoadMonitorConfigReportsParseErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "bad.yaml", "server: [unterminated\n")
	t.Setenv(envConfigPath, "")

	if _, source, err := loadMonitorConfig(path); err == nil || source != path {
		t.Fatalf("expected parse error for %s, got source=%s err=%v", path, source, err)
	}
}

func TestFormatStatsLines(t *testing.T) {
	tracker := stats.NewTracker()
	tracker.Add("primary", stats.CounterLines, 1200)
	tracker.Increment("primary", stats.CounterPolls)

	views := map[sidelink.Role]monitor.Observation{
		sidelink.RolePrimary: {
			Role: sidelink.RolePrimary,
			Snapshot: sidelink.Snapshot{
				Status: sidelink.StatusRunning,
				Frame:  12,
				Slot:   3,
				PSSCH:  sidelink.ChannelCounters{TX: 15000, RxOK: 0, RxNotOK: 0},
			},
			Quality: sidelink.Quality{Label: sidelink.LabelExcellent, Level: 100},
			Rates:   throughput.Rates{TxMbps: 1.5},
		},
	}

	lines := formatStatsLines(tracker, views)
	if len(lines) != 3 {
		t.Fatalf("expected uptime, counter and link lines, got %v", lines)
	}
	if !strings.HasPrefix(lines[0], "Uptime: ") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "lines=1,200") {
		t.Fatalf("expected humanized counter, got %q", lines[1])
	}
	want := "PRIMARY: running 12:3 PSSCH 15,000/0/0 EXCELLENT TX 1.50 RX 0.00 Mbps"
	if lines[2] != want {
		t.Fatalf("unexpected link line\n got: %q\nwant: %q", lines[2], want)
	}
}

func TestFormatRolePaneEscapesTerminal(t *testing.T) {
	o := monitor.Observation{
		Role: sidelink.RoleNearby,
		Snapshot: sidelink.Snapshot{
			Status:   sidelink.StatusError,
			Error:    "read [denied]",
			Terminal: []string{"PSSCH rx 10 [ok]"},
		},
		Quality: sidelink.Quality{Label: sidelink.LabelPoor, Level: 40},
	}
	pane := formatRolePane(o)
	if !strings.HasPrefix(pane, "[red]ERROR[-]") {
		t.Fatalf("expected red status, got %q", pane)
	}
	if !strings.Contains(pane, "read [denied[]") || !strings.Contains(pane, "PSSCH rx 10 [ok[]") {
		t.Fatalf("expected escaped text, got %q", pane)
	}
}
