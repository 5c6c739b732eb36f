package main

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"sidelinkmon/monitor"
	"sidelinkmon/sidelink"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// dashboard renders the console layout when a compatible terminal is
// available: a stats pane, one pane per role with its status line and the
// latest raw log lines, and the system log pane.
type dashboard struct {
	app        *tview.Application
	statsView  *tview.TextView
	roleViews  map[sidelink.Role]*tview.TextView
	systemView *tview.TextView
	ready      chan struct{}

	mu     sync.RWMutex
	events chan monitor.Observation
	closed atomic.Bool
}

const paneMaxLines = 6

func newDashboard() *dashboard {
	makePane := func(title string) *tview.TextView {
		tv := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
		tv.SetBorder(true)
		tv.SetTitle(" " + title + " ").SetTitleAlign(tview.AlignLeft)
		return tv
	}

	stats := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	stats.SetTextColor(tcell.ColorYellow)
	systemPane := makePane("System")
	systemPane.SetTextColor(tcell.ColorYellow)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(stats, 6, 0, false)
	roleViews := make(map[sidelink.Role]*tview.TextView, len(sidelink.Roles))
	for _, role := range sidelink.Roles {
		pane := makePane(strings.ToUpper(string(role)))
		roleViews[role] = pane
		layout.AddItem(pane, paneMaxLines+3, 0, false)
	}
	layout.AddItem(systemPane, 0, 1, false)

	app := tview.NewApplication().SetRoot(layout, true).EnableMouse(false)
	ready := make(chan struct{})
	var once sync.Once
	app.SetBeforeDrawFunc(func(tcell.Screen) bool {
		once.Do(func() { close(ready) })
		return false
	})
	d := &dashboard{
		app:        app,
		statsView:  stats,
		roleViews:  roleViews,
		systemView: systemPane,
		events:     make(chan monitor.Observation, 64),
		ready:      ready,
	}
	go d.runEventLoop()
	go func() {
		if err := app.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "dashboard error: %v\n", err)
		}
	}()
	return d
}

func (d *dashboard) Stop() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed.Swap(true) {
		return
	}
	close(d.events)
	d.app.Stop()
}

// Close lets the monitor shut the dashboard down with its observers.
func (d *dashboard) Close() error {
	d.Stop()
	return nil
}

func (d *dashboard) WaitReady() {
	if d == nil {
		return
	}
	<-d.ready
}

func (d *dashboard) SetStats(lines []string) {
	if d == nil || d.closed.Load() {
		return
	}
	text := strings.Join(lines, "\n")
	d.app.QueueUpdateDraw(func() {
		d.statsView.SetText(text)
	})
}

// Observe queues a role pane refresh; a lagging UI drops updates rather than
// stalling the poll cycle.
func (d *dashboard) Observe(o monitor.Observation) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed.Load() {
		return
	}
	select {
	case d.events <- o:
	default:
	}
}

func (d *dashboard) SystemWriter() *paneWriter {
	if d == nil {
		return nil
	}
	return &paneWriter{view: d.systemView, app: d.app}
}

type paneWriter struct {
	view *tview.TextView
	app  *tview.Application
}

func (w *paneWriter) Write(p []byte) (int, error) {
	if w == nil || w.view == nil {
		return len(p), nil
	}
	text := string(p)
	w.app.QueueUpdateDraw(func() {
		fmt.Fprint(w.view, text)
		w.view.ScrollToEnd()
	})
	return len(p), nil
}

func (d *dashboard) runEventLoop() {
	for o := range d.events {
		view := d.roleViews[o.Role]
		if view == nil {
			continue
		}
		text := formatRolePane(o)
		d.app.QueueUpdateDraw(func() {
			view.SetText(text)
		})
	}
}

// formatRolePane renders the status line followed by the raw log tail.
func formatRolePane(o monitor.Observation) string {
	s := o.Snapshot
	color := "green"
	switch s.Status {
	case sidelink.StatusStopped:
		color = "yellow"
	case sidelink.StatusError, sidelink.StatusUnknown:
		color = "red"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]%s[-] %d:%d  %s (%d)  TX %.1f / RX %.1f Mbps",
		color, strings.ToUpper(string(s.Status)), s.Frame, s.Slot,
		o.Quality.Label, o.Quality.Level, o.Rates.TxMbps, o.Rates.RxMbps)
	if s.Error != "" {
		b.WriteString("  " + tview.Escape(s.Error))
	}
	for _, line := range s.TerminalTail(paneMaxLines) {
		b.WriteString("\n" + tview.Escape(line))
	}
	return b.String()
}
