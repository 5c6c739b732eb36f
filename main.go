// Program sidelinkmon watches the stats logs of the primary and nearby
// sidelink radio processes and serves link telemetry over HTTP, with optional
// SQLite recording, MQTT publishing and a console dashboard.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	httppprof "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"sidelinkmon/api"
	"sidelinkmon/config"
	"sidelinkmon/monitor"
	"sidelinkmon/publisher"
	"sidelinkmon/recorder"
	"sidelinkmon/sidelink"
	"sidelinkmon/stats"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const (
	defaultConfigPath = "data/config.yaml"
	envConfigPath     = "SLMON_CONFIG_PATH"
	envPprofAddr      = "SLMON_PPROF_ADDR"
)

// Version will be set at build time
var Version = "dev"

// Purpose: Report whether stdout is a TTY for UI gating.
// Key aspects: Uses term.IsTerminal on stdout fd.
// Upstream: main UI selection.
// Downstream: term.IsTerminal.
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Purpose: Load configuration from flag, env or default locations.
// Key aspects: The first existing candidate wins; when none exists the
// built-in defaults are used.
// Upstream: main startup.
// Downstream: config.Load, config.Default.
func loadMonitorConfig(flagPath string) (*config.Config, string, error) {
	candidates := make([]string, 0, 3)
	if p := strings.TrimSpace(flagPath); p != "" {
		candidates = append(candidates, p)
	}
	if p := strings.TrimSpace(os.Getenv(envConfigPath)); p != "" {
		candidates = append(candidates, p)
	}
	candidates = append(candidates, defaultConfigPath)

	for _, path := range candidates {
		cfg, err := config.Load(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, path, err
		}
		return cfg, cfg.LoadedFrom, nil
	}
	return config.Default(), "built-in defaults", nil
}

func rolePaths(cfg *config.Config) map[sidelink.Role]string {
	return map[sidelink.Role]string{
		sidelink.RolePrimary: cfg.Sources.Primary.Path,
		sidelink.RoleNearby:  cfg.Sources.Nearby.Path,
	}
}

func roleInfo(src config.SourceConfig) api.RoleInfo {
	return api.RoleInfo{
		Label:     src.Label,
		Carrier:   src.Carrier,
		Bandwidth: src.Bandwidth,
		MCS:       src.MCS,
		TxPower:   src.TxPower,
		RxGain:    src.RxGain,
	}
}

// Purpose: Program entrypoint; wires config, logging, observers, monitor and
// the HTTP server.
// Key aspects: Optional pieces (recorder, MQTT, dashboard) degrade to a log
// warning when they fail to start.
// Upstream: OS process start.
// Downstream: monitor.New, api.Server, displayStats.
func main() {
	configPath := pflag.StringP("config", "c", "", "config file or directory (env "+envConfigPath+")")
	showVersion := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()
	if *showVersion {
		fmt.Println(Version)
		return
	}

	cfg, configSource, err := loadMonitorConfig(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	router, err := setupLogging(cfg.Logging, os.Stdout)
	log.SetFlags(0)
	log.SetOutput(router)
	if err != nil {
		log.Printf("Logging: file sink disabled: %v", err)
	}
	defer router.Close()
	log.Printf("Loaded configuration from %s", configSource)

	var ui *dashboard
	switch strings.ToLower(strings.TrimSpace(cfg.UI.Mode)) {
	case "tview":
		if !isStdoutTTY() {
			log.Printf("UI disabled (tview requires an interactive console)")
		} else {
			ui = newDashboard()
		}
	default:
		log.Printf("UI disabled (mode=headless)")
	}
	if ui != nil {
		ui.WaitReady()
		router.SetConsoleSink(ui.SystemWriter(), true)
		ui.SetStats([]string{"Initializing..."})
	} else {
		cfg.Print()
	}

	log.Printf("%s v%s starting...", cfg.Server.Name, Version)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker := stats.NewTracker()
	router.OnDayClose(dayCloseSummary(router, tracker))

	var observers []monitor.Observer
	if ui != nil {
		observers = append(observers, ui)
	}
	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		rec, err = recorder.Open(cfg.Recorder.DBPath, recorder.Options{
			PerRoleLimit: cfg.Recorder.PerRoleLimit,
			QueueSize:    cfg.Recorder.QueueSize,
			BatchSize:    cfg.Recorder.BatchSize,
		})
		if err != nil {
			log.Printf("Warning: recorder disabled: %v", err)
		} else {
			observers = append(observers, rec)
			log.Printf("Recorder: writing observations to %s", cfg.Recorder.DBPath)
		}
	}
	var pub *publisher.Publisher
	if cfg.MQTT.Enabled {
		pub = publisher.New(publisher.Options{
			Broker:      cfg.MQTT.Broker,
			Port:        cfg.MQTT.Port,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		})
		if err := pub.Connect(); err != nil {
			log.Printf("Warning: MQTT publishing disabled: %v", err)
			pub = nil
		} else {
			observers = append(observers, pub)
		}
	}

	mon := monitor.New(monitor.Options{
		Paths:           rolePaths(cfg),
		HistoryCapacity: cfg.History.Capacity,
		Tracker:         tracker,
		Observers:       observers,
	})
	mon.StartPoller(ctx, cfg.Poller.Interval())

	server := api.New(api.Options{
		Monitor: mon,
		Roles: map[sidelink.Role]api.RoleInfo{
			sidelink.RolePrimary: roleInfo(cfg.Sources.Primary),
			sidelink.RoleNearby:  roleInfo(cfg.Sources.Nearby),
		},
		ServiceName: cfg.Server.Name,
	})
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe(ctx, cfg.Server.Listen)
	}()

	statsInterval := time.Duration(cfg.Logging.StatsInterval) * time.Second
	go displayStats(ctx, statsInterval, mon, rec, pub, ui, router)
	maybeStartDiagServer()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	log.Printf("Monitoring %s (primary) and %s (nearby)", cfg.Sources.Primary.Path, cfg.Sources.Nearby.Path)
	log.Println("Press Ctrl+C to stop.")

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("API: %v", err)
		}
	}
	log.Println("Shutting down gracefully...")
	cancel()

	if ui != nil {
		router.SetConsoleSink(os.Stdout, true)
	}
	if err := mon.Close(); err != nil {
		log.Printf("Warning: observer close: %v", err)
	}
	if rec != nil && rec.Dropped() > 0 {
		log.Printf("Recorder dropped %s observations under load", humanize.Comma(int64(rec.Dropped())))
	}
	log.Println("Monitor stopped")
}

// dayCloseSummary logs the closed day and copies the poll counters into the
// new day's file.
func dayCloseSummary(router *logRouter, tracker *stats.Tracker) dayCloseHook {
	return func(prevDate time.Time, _, _ string) {
		log.Printf("Logging: day %s closed", prevDate.Format(logFileDateLayout))
		now := time.Now().UTC()
		for _, line := range tracker.SnapshotLines() {
			router.WriteFileOnlyLine(line, now)
		}
	}
}

// Purpose: Periodically emit poll stats to the dashboard or the log.
// Key aspects: With the dashboard active the lines go to the stats pane and
// the log file only, keeping the system pane readable.
// Upstream: main.
// Downstream: formatStatsLines, dashboard.SetStats, logRouter.
func displayStats(ctx context.Context, interval time.Duration, mon *monitor.Monitor, rec *recorder.Recorder, pub *publisher.Publisher, ui *dashboard, router *logRouter) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var gcWindow gcPauseWindow
	var mem runtime.MemStats
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		lines := formatStatsLines(mon.Tracker(), mon.Views())
		runtime.ReadMemStats(&mem)
		lines = append(lines, formatRuntimeLine(&mem, runtime.NumGoroutine(), &gcWindow))
		if rec != nil {
			lines = append(lines, fmt.Sprintf("Recorder: %s rows, %s dropped",
				humanize.Comma(int64(rec.Inserted())), humanize.Comma(int64(rec.Dropped()))))
		}
		if pub != nil {
			published, skipped := pub.Stats()
			lines = append(lines, fmt.Sprintf("MQTT: %s published, %s skipped",
				humanize.Comma(int64(published)), humanize.Comma(int64(skipped))))
		}
		if ui != nil {
			ui.SetStats(lines)
			now := time.Now().UTC()
			for _, line := range lines {
				router.WriteFileOnlyLine(line, now)
			}
			continue
		}
		for _, line := range lines {
			log.Print(line)
		}
	}
}

// formatStatsLines renders the tracker counters plus one link line per role.
func formatStatsLines(tracker *stats.Tracker, views map[sidelink.Role]monitor.Observation) []string {
	lines := tracker.SnapshotLines()
	for _, role := range sidelink.Roles {
		obs, ok := views[role]
		if !ok {
			continue
		}
		s := obs.Snapshot
		lines = append(lines, fmt.Sprintf("%s: %s %d:%d PSSCH %s/%s/%s %s TX %.2f RX %.2f Mbps",
			strings.ToUpper(string(role)), s.Status, s.Frame, s.Slot,
			humanize.Comma(int64(s.PSSCH.TX)), humanize.Comma(int64(s.PSSCH.RxOK)), humanize.Comma(int64(s.PSSCH.RxNotOK)),
			obs.Quality.Label, obs.Rates.TxMbps, obs.Rates.RxMbps))
	}
	return lines
}

// maybeStartDiagServer exposes /debug/pprof/* when SLMON_PPROF_ADDR is set
// (example: SLMON_PPROF_ADDR=localhost:6061). Default is off.
func maybeStartDiagServer() {
	addr := strings.TrimSpace(os.Getenv(envPprofAddr))
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", httppprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", httppprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", httppprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", httppprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", httppprof.Trace)
	go func() {
		log.Printf("Diagnostics server listening on %s (pprof)", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("Diagnostics server error: %v", err)
		}
	}()
}
