package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

const eventFamily = "castlet_signal_relay_events_total"

// PrometheusHandler exposes Metrics in Prometheus' text exposition format.
//
// All counters share one metric family with an `event` label. The declared
// EventNames are always exported, zero-valued or not; counters incremented
// under names outside that list follow, sorted.
func PrometheusHandler(m *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		snap := m.Snapshot()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = fmt.Fprintf(w, "# HELP %s Relay signaling and session lifecycle events.\n", eventFamily)
		_, _ = fmt.Fprintf(w, "# TYPE %s counter\n", eventFamily)

		declared := make(map[string]bool, len(EventNames))
		for _, name := range EventNames {
			writeEvent(w, name, snap[name])
			declared[name] = true
		}

		var extras []string
		for name := range snap {
			if !declared[name] {
				extras = append(extras, name)
			}
		}
		sort.Strings(extras)
		for _, name := range extras {
			writeEvent(w, name, snap[name])
		}
	})
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func writeEvent(w io.Writer, name string, value uint64) {
	_, _ = fmt.Fprintf(w, "%s{event=\"%s\"} %d\n", eventFamily, labelEscaper.Replace(name), value)
}
