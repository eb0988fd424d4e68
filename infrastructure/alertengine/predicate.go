package alertengine

import (
	"encoding/json"
	"fmt"

	"github.com/PaesslerAG/jsonpath"

	"github.com/R3E-Network/service_layer/domain/alerting"
	"github.com/R3E-Network/service_layer/domain/telemetry"
)

// fieldPath maps each closed Field selector to the jsonpath expression
// PayloadSubset uses to pick its value out of a MetricSnapshot marshaled to
// its JSON form. resolveField does not use this table; it reads the
// snapshot's struct fields directly.
var fieldPath = map[alerting.Field]string{
	alerting.FieldCPUUsage:        "$.host.cpu_percent",
	alerting.FieldMemoryUsage:     "$.host.memory_used",
	alerting.FieldDiskUsage:       "$.host.disk_used",
	alerting.FieldDrawdownCurrent: "$.domain.drawdown_current",
	alerting.FieldPnLDaily:        "$.domain.performance.pnl_daily",
}

// resolveField extracts the current numeric value of field from snapshot.
// Unknown selectors return an error, which the engine treats as "predicate
// false" for that rule on that snapshot, per spec.md §4.C.
func resolveField(field alerting.Field, snapshot telemetry.MetricSnapshot) (float64, error) {
	switch field {
	case alerting.FieldCPUUsage:
		return snapshot.Host.CPUPercent, nil
	case alerting.FieldMemoryUsage:
		if snapshot.Host.MemoryTotal == 0 {
			return 0, nil
		}
		return float64(snapshot.Host.MemoryUsed) / float64(snapshot.Host.MemoryTotal) * 100, nil
	case alerting.FieldDiskUsage:
		if snapshot.Host.DiskTotal == 0 {
			return 0, nil
		}
		return float64(snapshot.Host.DiskUsed) / float64(snapshot.Host.DiskTotal) * 100, nil
	case alerting.FieldDrawdownCurrent:
		return snapshot.Domain.DrawdownCurrent, nil
	case alerting.FieldPnLDaily:
		return snapshot.Domain.Performance.PnLDaily, nil
	default:
		return 0, fmt.Errorf("unknown field selector %q", field)
	}
}

// compare applies comparator to (value, threshold).
func compare(comparator alerting.Comparator, value, threshold float64) (bool, error) {
	switch comparator {
	case alerting.ComparatorGreaterThan:
		return value > threshold, nil
	case alerting.ComparatorLessThan:
		return value < threshold, nil
	case alerting.ComparatorEquals:
		return value == threshold, nil
	case alerting.ComparatorNotEquals:
		return value != threshold, nil
	default:
		return false, fmt.Errorf("unknown comparator %q", comparator)
	}
}

// Evaluate applies rule's predicate (field selector + comparator +
// threshold) to snapshot.
func Evaluate(rule alerting.ThresholdRule, snapshot telemetry.MetricSnapshot) (bool, error) {
	value, err := resolveField(rule.Field, snapshot)
	if err != nil {
		return false, err
	}
	return compare(rule.Comparator, value, rule.Threshold)
}

// PayloadSubset extracts the portion of snapshot relevant to field as an
// alert payload, using the jsonpath expression fieldPath maps the selector
// to. For memory and disk usage that expression selects the raw used-bytes
// counter, not the percentage resolveField compares against the threshold.
// This keeps the alert payload a narrow, field-scoped view of the
// triggering snapshot rather than the whole object.
func PayloadSubset(snapshot telemetry.MetricSnapshot, field alerting.Field) (map[string]any, error) {
	path, ok := fieldPath[field]
	if !ok {
		return nil, fmt.Errorf("unknown field selector %q", field)
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	value, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"field":        field,
		"value":        value,
		"timestamp_ms": snapshot.TimestampMS,
	}, nil
}
