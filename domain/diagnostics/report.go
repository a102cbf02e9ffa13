// Package diagnostics holds read-only analyzers that judge whether the
// assumptions behind an estimate are plausible. Analyzers never mutate the
// estimator they inspect and results are recomputed on every call.
package diagnostics

import (
	"sort"

	"gocausal/domain/causal"
)

// Report is an immutable flat mapping of metric name to a numeric or boolean
// value, plus the warnings raised while computing it.
type Report struct {
	floats   map[string]float64
	bools    map[string]bool
	warnings []causal.Warning
}

// Float returns a numeric metric.
func (r *Report) Float(name string) (float64, bool) {
	v, ok := r.floats[name]
	return v, ok
}

// Bool returns a boolean metric.
func (r *Report) Bool(name string) (bool, bool) {
	v, ok := r.bools[name]
	return v, ok
}

// Has reports whether a metric of either type exists.
func (r *Report) Has(name string) bool {
	_, f := r.floats[name]
	_, b := r.bools[name]
	return f || b
}

// Keys returns every metric name in ascending order.
func (r *Report) Keys() []string {
	keys := make([]string, 0, len(r.floats)+len(r.bools))
	for k := range r.floats {
		keys = append(keys, k)
	}
	for k := range r.bools {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flatten returns a copy of all metrics as a single map.
func (r *Report) Flatten() map[string]any {
	out := make(map[string]any, len(r.floats)+len(r.bools))
	for k, v := range r.floats {
		out[k] = v
	}
	for k, v := range r.bools {
		out[k] = v
	}
	return out
}

// Warnings returns a copy of the attached warnings.
func (r *Report) Warnings() []causal.Warning {
	return append([]causal.Warning(nil), r.warnings...)
}

// HasWarning reports whether a warning of kind is attached.
func (r *Report) HasWarning(kind causal.WarningKind) bool {
	return causal.HasWarning(r.warnings, kind)
}

// Len returns the number of metrics.
func (r *Report) Len() int {
	return len(r.floats) + len(r.bools)
}

// reportBuilder accumulates metrics before freezing them into a Report.
type reportBuilder struct {
	prefix   string
	floats   map[string]float64
	bools    map[string]bool
	warnings []causal.Warning
}

func newReportBuilder(prefix string) *reportBuilder {
	return &reportBuilder{
		prefix: prefix,
		floats: make(map[string]float64),
		bools:  make(map[string]bool),
	}
}

func (b *reportBuilder) key(name string) string {
	if b.prefix == "" {
		return name
	}
	return b.prefix + "." + name
}

func (b *reportBuilder) float(name string, v float64) *reportBuilder {
	b.floats[b.key(name)] = v
	return b
}

func (b *reportBuilder) count(name string, v int) *reportBuilder {
	return b.float(name, float64(v))
}

func (b *reportBuilder) bool(name string, v bool) *reportBuilder {
	b.bools[b.key(name)] = v
	return b
}

func (b *reportBuilder) warn(ws ...causal.Warning) *reportBuilder {
	b.warnings = append(b.warnings, ws...)
	return b
}

// merge copies another report's metrics under this builder's prefix.
func (b *reportBuilder) merge(r *Report) *reportBuilder {
	if r == nil {
		return b
	}
	for k, v := range r.floats {
		b.floats[b.key(k)] = v
	}
	for k, v := range r.bools {
		b.bools[b.key(k)] = v
	}
	b.warnings = append(b.warnings, r.warnings...)
	return b
}

func (b *reportBuilder) build() *Report {
	floats := make(map[string]float64, len(b.floats))
	for k, v := range b.floats {
		floats[k] = v
	}
	bools := make(map[string]bool, len(b.bools))
	for k, v := range b.bools {
		bools[k] = v
	}
	return &Report{
		floats:   floats,
		bools:    bools,
		warnings: append([]causal.Warning(nil), b.warnings...),
	}
}

func armKey(name string, t causal.Treatment) string {
	return "arm_" + t.String() + "." + name
}
