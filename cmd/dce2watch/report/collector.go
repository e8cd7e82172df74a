// Package report accumulates per-run disposition and alert counts for
// cmd/dce2watch's report subcommand to print as a summary table.
package report

import (
	"sort"
	"strconv"
	"sync"

	"github.com/flowguard/dce2smb/internal/cliout"
)

type dispositionKey struct {
	family, direction, disposition string
}

// Collector counts transaction dispositions and alerts as the engine
// produces them. It satisfies both metrics.TransMetrics and
// metrics.AlertMetrics, so a single value can be wired as a trans.Session's
// Metrics field and, via alerts.NewMetricsSink, as an alerts.Sink's
// counting layer — the same collaborator feeding both summaries.
type Collector struct {
	mu           sync.Mutex
	dispositions map[dispositionKey]int
	alertsByKind map[string]int
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		dispositions: make(map[dispositionKey]int),
		alertsByKind: make(map[string]int),
	}
}

// RecordDisposition implements metrics.TransMetrics.
func (c *Collector) RecordDisposition(family, direction, disposition string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispositions[dispositionKey{family, direction, disposition}]++
}

// RecordFragmentBytes implements metrics.TransMetrics. The report table has
// no byte-histogram column, so this is a no-op.
func (c *Collector) RecordFragmentBytes(family, stream string, bytes int) {}

// RecordAlert implements metrics.AlertMetrics.
func (c *Collector) RecordAlert(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alertsByKind[kind]++
}

// DispositionTable renders one row per (family, direction, disposition)
// combination observed, sorted for stable output.
func (c *Collector) DispositionTable() cliout.TableRenderer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := cliout.NewTableData("FAMILY", "DIRECTION", "DISPOSITION", "COUNT")
	keys := make([]dispositionKey, 0, len(c.dispositions))
	for k := range c.dispositions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].family != keys[j].family {
			return keys[i].family < keys[j].family
		}
		if keys[i].direction != keys[j].direction {
			return keys[i].direction < keys[j].direction
		}
		return keys[i].disposition < keys[j].disposition
	})
	for _, k := range keys {
		t.AddRow(k.family, k.direction, k.disposition, strconv.Itoa(c.dispositions[k]))
	}
	return t
}

// AlertTable renders one row per alert kind observed, sorted for stable
// output.
func (c *Collector) AlertTable() cliout.TableRenderer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := cliout.NewTableData("KIND", "COUNT")
	kinds := make([]string, 0, len(c.alertsByKind))
	for k := range c.alertsByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		t.AddRow(k, strconv.Itoa(c.alertsByKind[k]))
	}
	return t
}

// TotalAlerts returns the number of alerts recorded across all kinds.
func (c *Collector) TotalAlerts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.alertsByKind {
		total += n
	}
	return total
}
