package failoverengine

import (
	"strconv"
	"time"

	"github.com/R3E-Network/service_layer/domain/failover"
	"github.com/R3E-Network/service_layer/infrastructure/standby"
)

const maxHistoryPerCondition = 100

// observation is one timestamped evaluation of a single condition.
type observation struct {
	at    time.Time
	value bool
}

// evaluateCondition reads the target component's current health from the
// StandbyManager and compares it against the condition per its type and
// comparator. A condition naming an unknown component evaluates false
// rather than panicking or erroring the whole rule. The `custom` type is
// rejected at configuration load (applications/controlplane's
// failoverRules) and never reaches this function; the default case below
// only guards against a type value outside the closed enumeration.
func evaluateCondition(sm standby.Manager, c failover.Condition) bool {
	if sm == nil {
		return false
	}
	health := sm.GetComponentHealth(c.Target)
	if health == nil {
		return false
	}

	switch c.Type {
	case failover.ConditionHealthCheck:
		return compareString(string(health.Status), c.Comparator, c.ExpectedValue)
	case failover.ConditionResponseTime:
		return compareFloat(float64(health.ResponseTimeMS), c.Comparator, c.ExpectedValue)
	case failover.ConditionErrorRate:
		return compareFloat(float64(health.ConsecutiveFailures), c.Comparator, c.ExpectedValue)
	case failover.ConditionSyncLag:
		if health.Sync == nil {
			return false
		}
		return compareFloat(health.Sync.LagSeconds, c.Comparator, c.ExpectedValue)
	default:
		return false
	}
}

func compareString(observed string, comparator failover.Comparator, expected string) bool {
	switch comparator {
	case failover.ComparatorEquals:
		return observed == expected
	case failover.ComparatorNotEquals:
		return observed != expected
	case failover.ComparatorContains:
		return len(expected) > 0 && len(observed) >= len(expected) && indexOf(observed, expected) >= 0
	default:
		return false
	}
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func compareFloat(observed float64, comparator failover.Comparator, expectedRaw string) bool {
	expected, err := strconv.ParseFloat(expectedRaw, 64)
	if err != nil {
		return false
	}
	switch comparator {
	case failover.ComparatorEquals:
		return observed == expected
	case failover.ComparatorNotEquals:
		return observed != expected
	case failover.ComparatorGreaterThan:
		return observed > expected
	case failover.ComparatorLessThan:
		return observed < expected
	default:
		return false
	}
}

// window tracks the trailing observations for one rule's condition, capped
// at maxHistoryPerCondition entries.
type window struct {
	entries []observation
}

func (w *window) record(at time.Time, value bool) {
	w.entries = append(w.entries, observation{at: at, value: value})
	if len(w.entries) > maxHistoryPerCondition {
		w.entries = w.entries[len(w.entries)-maxHistoryPerCondition:]
	}
}

// holds reports whether this condition is satisfied. With Duration == 0
// only the latest observation matters. With Duration > 0, every retained
// observation within the trailing duration window must be true, and at
// least one observation must be old enough to span the full duration —
// otherwise there isn't yet enough history to claim the duration has been
// satisfied, so holds conservatively returns false.
func (w *window) holds(duration time.Duration, now time.Time) bool {
	if len(w.entries) == 0 {
		return false
	}
	if duration <= 0 {
		return w.entries[len(w.entries)-1].value
	}

	horizon := now.Add(-duration)
	if w.entries[0].at.After(horizon) {
		return false
	}
	for _, obs := range w.entries {
		if obs.at.Before(horizon) {
			continue
		}
		if !obs.value {
			return false
		}
	}
	return true
}
