// Command slstat reads one sidelink stats log and prints the link snapshot,
// once or repeatedly with --follow.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"sidelinkmon/monitor"
	"sidelinkmon/sidelink"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/pflag"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	fileFlag := pflag.StringP("file", "f", "", "stats log to read (required)")
	roleFlag := pflag.StringP("role", "r", string(sidelink.RolePrimary), "role of the log: primary or nearby")
	followFlag := pflag.Bool("follow", false, "keep polling the log until interrupted")
	intervalFlag := pflag.Duration("interval", 2*time.Second, "poll interval with --follow")
	jsonFlag := pflag.Bool("json", false, "print observations as JSON lines")
	pflag.Parse()
	log.SetFlags(log.LstdFlags | log.LUTC)

	if strings.TrimSpace(*fileFlag) == "" {
		pflag.Usage()
		os.Exit(2)
	}
	role, ok := sidelink.ParseRole(*roleFlag)
	if !ok {
		log.Fatalf("Invalid role %q", *roleFlag)
	}

	src := monitor.NewSource(monitor.SourceOptions{
		Role:            role,
		Path:            *fileFlag,
		HistoryCapacity: 1,
	})
	emit := func(o monitor.Observation) {
		if err := writeObservation(os.Stdout, o, *jsonFlag); err != nil {
			log.Fatalf("write: %v", err)
		}
	}

	emit(src.Poll())
	if !*followFlag {
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ticker := time.NewTicker(*intervalFlag)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			emit(src.Poll())
		}
	}
}

type observationLine struct {
	Role     sidelink.Role                       `json:"role"`
	Status   sidelink.Status                     `json:"status"`
	Frame    int                                 `json:"frame"`
	Slot     int                                 `json:"slot"`
	Channels map[string]sidelink.ChannelCounters `json:"channels"`
	Quality  sidelink.Quality                    `json:"quality"`
	TxMbps   float64                             `json:"tx_mbps"`
	RxMbps   float64                             `json:"rx_mbps"`
	Error    string                              `json:"error,omitempty"`
}

// writeObservation prints o as a JSON line or as a short human summary.
func writeObservation(w io.Writer, o monitor.Observation, asJSON bool) error {
	s := o.Snapshot
	if asJSON {
		line := observationLine{
			Role:     o.Role,
			Status:   s.Status,
			Frame:    s.Frame,
			Slot:     s.Slot,
			Channels: make(map[string]sidelink.ChannelCounters, len(sidelink.Channels)),
			Quality:  o.Quality,
			TxMbps:   o.Rates.TxMbps,
			RxMbps:   o.Rates.RxMbps,
			Error:    s.Error,
		}
		for _, ch := range sidelink.Channels {
			line.Channels[string(ch)] = s.Counters(ch)
		}
		data, err := json.Marshal(line)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s frame %d slot %d, quality %s (%d), TX %.2f RX %.2f Mbps\n",
		strings.ToUpper(string(o.Role)), s.Status, s.Frame, s.Slot,
		o.Quality.Label, o.Quality.Level, o.Rates.TxMbps, o.Rates.RxMbps)
	for _, ch := range sidelink.Channels {
		c := s.Counters(ch)
		fmt.Fprintf(&b, "  %-5s tx %s, rx ok %s, rx not ok %s\n", ch,
			humanize.Comma(int64(c.TX)), humanize.Comma(int64(c.RxOK)), humanize.Comma(int64(c.RxNotOK)))
	}
	if s.Error != "" {
		fmt.Fprintf(&b, "  error: %s\n", s.Error)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
