package telemetry

// Segment describes a dated append-only file segment: one file per UTC
// date holding line-delimited JSON MetricSnapshots, optionally gzip
// compressed once it ages past the compression horizon.
type Segment struct {
	DateKey    string `json:"date_key"`
	Path       string `json:"path"`
	Compressed bool   `json:"compressed"`
	Bytes      int64  `json:"bytes"`
}
