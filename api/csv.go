package api

import (
	"bytes"
	"encoding/csv"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"sidelinkmon/history"
	"sidelinkmon/sidelink"
)

var csvHeader = []string{
	"timestamp", "role", "tx_mbps", "rx_mbps", "rsrp", "sinr", "cqi",
	"psbch_tx", "pssch_tx", "pssch_rx", "errors",
}

// WriteHistoryCSV flattens the per-role history rows in role order.
func WriteHistoryCSV(out io.Writer, rows map[sidelink.Role][]history.Row) error {
	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, role := range sidelink.Roles {
		for _, row := range rows[role] {
			record := []string{
				row.Throughput.Timestamp.UTC().Format(time.RFC3339),
				string(role),
				formatFloat(row.Throughput.TxMbps, 2),
				formatFloat(row.Throughput.RxMbps, 2),
				formatFloat(row.Signal.RSRP, 1),
				formatFloat(row.Signal.SINR, 1),
				strconv.Itoa(row.Signal.CQI),
				strconv.FormatUint(row.Packets.PSBCHTx, 10),
				strconv.FormatUint(row.Packets.PSSCHTx, 10),
				strconv.FormatUint(row.Packets.PSSCHRx, 10),
				strconv.FormatUint(row.Packets.Errors, 10),
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func (s *Server) handleCSV(w http.ResponseWriter, r *http.Request) {
	rows := make(map[sidelink.Role][]history.Row, len(sidelink.Roles))
	for _, role := range sidelink.Roles {
		src, err := s.monitor.Source(role)
		if err != nil {
			continue
		}
		rows[role] = src.HistoryRows()
	}
	var buf bytes.Buffer
	if err := WriteHistoryCSV(&buf, rows); err != nil {
		log.Printf("API: csv export: %v", err)
		writeError(w, http.StatusInternalServerError, "csv export failed")
		return
	}
	name := "sidelink_metrics_" + s.now().Format("20060102_150405") + ".csv"
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	writeCached(w, r, "text/csv", buf.Bytes())
}
