// Package telemetry defines the immutable metric types the Sampler produces,
// the Retention Store persists, and the Alert Engine evaluates against.
package telemetry

import "time"

// HostMetrics captures host-level resource counters for a single tick.
// Network fields are non-negative deltas against the previous tick; on the
// first tick of a Sampler instance they are zero.
type HostMetrics struct {
	CPUPercent     float64   `json:"cpu_percent"`
	LoadAverage1   float64   `json:"load_average_1"`
	LoadAverage5   float64   `json:"load_average_5"`
	LoadAverage15  float64   `json:"load_average_15"`
	CoreCount      int       `json:"core_count"`
	MemoryTotal    uint64    `json:"memory_total"`
	MemoryUsed     uint64    `json:"memory_used"`
	MemoryFree     uint64    `json:"memory_free"`
	HeapUsed       uint64    `json:"heap_used"`
	DiskTotal      uint64    `json:"disk_total"`
	DiskUsed       uint64    `json:"disk_used"`
	DiskFree       uint64    `json:"disk_free"`
	NetworkBytesIn uint64    `json:"network_bytes_in"`
	NetworkBytesOut uint64   `json:"network_bytes_out"`
}

// PerformanceMetrics captures PnL and risk-adjusted return figures for one
// period (the top-level block, or one of DomainMetrics' phase sub-blocks).
type PerformanceMetrics struct {
	PnLDaily     float64 `json:"pnl_daily"`
	PnLWeekly    float64 `json:"pnl_weekly"`
	PnLMonthly   float64 `json:"pnl_monthly"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	Sharpe       float64 `json:"sharpe"`
}

// PhaseMetrics is a reduced-cardinality view of DomainMetrics scoped to a
// single trading phase (e.g. a session or strategy bucket).
type PhaseMetrics struct {
	Name           string             `json:"name"`
	EquityTotal    float64            `json:"equity_total"`
	DrawdownCurrent float64           `json:"drawdown_current"`
	Performance    PerformanceMetrics `json:"performance"`
}

// DomainMetrics captures the trading-platform domain state at a single
// instant. It is supplied synchronously by an injected DomainSource.
type DomainMetrics struct {
	EquityTotal       float64            `json:"equity_total"`
	EquityAvailable   float64            `json:"equity_available"`
	EquityUnrealized  float64            `json:"equity_unrealized"`
	DrawdownCurrent   float64            `json:"drawdown_current"`
	DrawdownMaximum   float64            `json:"drawdown_maximum"`
	DrawdownDuration  time.Duration      `json:"drawdown_duration"`
	PositionsLong     int                `json:"positions_long"`
	PositionsShort    int                `json:"positions_short"`
	PositionsNotional float64            `json:"positions_notional"`
	Performance       PerformanceMetrics `json:"performance"`
	Phases            []PhaseMetrics     `json:"phases,omitempty"`
}

// MetricSnapshot is the immutable unit the Sampler produces, the Retention
// Store persists one-per-line, and the Alert Engine evaluates thresholds
// against.
type MetricSnapshot struct {
	TimestampMS int64         `json:"timestamp_ms"`
	Host        HostMetrics   `json:"host"`
	Domain      DomainMetrics `json:"domain"`
}

// Timestamp returns the snapshot's timestamp as a time.Time in UTC.
func (s MetricSnapshot) Timestamp() time.Time {
	return time.UnixMilli(s.TimestampMS).UTC()
}

// DateKey returns the UTC date key (YYYY-MM-DD) used to select the segment
// this snapshot belongs to.
func (s MetricSnapshot) DateKey() string {
	return s.Timestamp().Format("2006-01-02")
}
