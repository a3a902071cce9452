package telemetry

import (
	"context"
	"maps"
	"sort"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys
const (
	ProfilingLabelOperation = "operation"
	ProfilingLabelJob       = "job"
	ProfilingLabelRegion    = "region"
)

// Operations tagged on CPU profiles
const (
	OperationScheduleGeneration = "schedule_generation"
	OperationPayment            = "payment"
	OperationClassification     = "classification"
	OperationAging              = "aging"
	OperationOutbox             = "outbox"
)

// MaxLabelValueLength truncates label values
const MaxLabelValueLength = 128

// highCardinalityLabels are never attached to profiles
var highCardinalityLabels = map[string]bool{
	"contract_id":   true,
	"receivable_id": true,
	"payment_id":    true,
	"actor_id":      true,
	"run_id":        true,
	"trace_id":      true,
	"span_id":       true,
}

// WithProfilingLabels runs fn with pprof labels that Pyroscope uses to
// slice profiles. Empty and high-cardinality labels are dropped.
//
//	telemetry.WithProfilingLabels(ctx, telemetry.EngineOperationLabels(telemetry.OperationAging, "sweep"), func(c context.Context) {
//	    result, err = s.sweep(c, asOf)
//	})
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(maps.Clone(labels))
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// EngineOperationLabels builds labels for an engine operation and an
// optional job or step name
func EngineOperationLabels(operation, job string) map[string]string {
	labels := map[string]string{ProfilingLabelOperation: operation}
	if job != "" {
		labels[ProfilingLabelJob] = job
	}
	return labels
}

// RegionLabels builds labels for a code region such as "ledger_post"
func RegionLabels(region string, extra map[string]string) map[string]string {
	labels := make(map[string]string, len(extra)+1)
	maps.Copy(labels, extra)
	labels[ProfilingLabelRegion] = region
	return labels
}

// sanitizeLabels returns sorted key/value pairs with snake_case keys and
// truncated values
func sanitizeLabels(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(labels)*2)
	for _, key := range keys {
		value := labels[key]
		if key == "" || value == "" || highCardinalityLabels[key] {
			continue
		}
		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}
		if k := sanitizeLabelKey(key); k != "" {
			pairs = append(pairs, k, value)
		}
	}
	return pairs
}

func sanitizeLabelKey(key string) string {
	key = strings.ToLower(key)
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)

	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
