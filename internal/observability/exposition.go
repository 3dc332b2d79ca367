package observability

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Minimal Prometheus text exposition. Series are written in label order so
// scrapes are stable.

type family struct {
	name   string
	help   string
	kind   string
	labels []string
}

func (f family) header(w io.Writer) error {
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, f.kind)
	return err
}

type counter struct {
	family
	mu   sync.Mutex
	vals map[string]float64
}

func newCounter(name, help string, labels ...string) *counter {
	return &counter{family: family{name, help, "counter", labels}, vals: map[string]float64{}}
}

func (c *counter) inc(labelValues ...string) { c.add(1, labelValues...) }

func (c *counter) add(v float64, labelValues ...string) {
	key := renderLabels(c.labels, labelValues)
	c.mu.Lock()
	c.vals[key] += v
	c.mu.Unlock()
}

func (c *counter) write(w io.Writer) error {
	if err := c.header(w); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range sortedKeys(c.vals) {
		if _, err := fmt.Fprintf(w, "%s%s %s\n", c.name, key, formatValue(c.vals[key])); err != nil {
			return err
		}
	}
	return nil
}

type gauge struct {
	family
	mu  sync.Mutex
	val float64
}

func newGauge(name, help string) *gauge {
	return &gauge{family: family{name: name, help: help, kind: "gauge"}}
}

func (g *gauge) add(d float64) {
	g.mu.Lock()
	g.val += d
	g.mu.Unlock()
}

func (g *gauge) write(w io.Writer) error {
	if err := g.header(w); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := fmt.Fprintf(w, "%s %s\n", g.name, formatValue(g.val))
	return err
}

type histogram struct {
	family
	bounds []float64
	mu     sync.Mutex
	series map[string]*histSeries
}

// histSeries keeps per-bucket counts; the last slot is the +Inf overflow.
type histSeries struct {
	counts []uint64
	sum    float64
	n      uint64
}

func newHistogram(name, help string, bounds []float64, labels ...string) *histogram {
	sort.Float64s(bounds)
	return &histogram{family: family{name, help, "histogram", labels}, bounds: bounds, series: map[string]*histSeries{}}
}

func (h *histogram) observe(v float64, labelValues ...string) {
	key := renderLabels(h.labels, labelValues)
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.series[key]
	if !ok {
		s = &histSeries{counts: make([]uint64, len(h.bounds)+1)}
		h.series[key] = s
	}
	s.counts[sort.SearchFloat64s(h.bounds, v)]++
	s.sum += v
	s.n++
}

func (h *histogram) write(w io.Writer) error {
	if err := h.header(w); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, key := range sortedKeys(h.series) {
		s := h.series[key]
		var cum uint64
		for i, b := range h.bounds {
			cum += s.counts[i]
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLabel(key, "le", formatValue(b)), cum); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n%s_sum%s %s\n%s_count%s %d\n",
			h.name, withLabel(key, "le", "+Inf"), s.n,
			h.name, key, formatValue(s.sum),
			h.name, key, s.n); err != nil {
			return err
		}
	}
	return nil
}

func renderLabels(names, values []string) string {
	if len(names) == 0 {
		return ""
	}
	pairs := make([]string, len(names))
	for i, name := range names {
		val := "unknown"
		if i < len(values) && values[i] != "" {
			val = values[i]
		}
		pairs[i] = labelPair(name, val)
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

func withLabel(rendered, name, value string) string {
	pair := labelPair(name, value)
	if rendered == "" {
		return "{" + pair + "}"
	}
	return strings.TrimSuffix(rendered, "}") + "," + pair + "}"
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func labelPair(name, value string) string {
	return name + `="` + labelEscaper.Replace(value) + `"`
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
