// Package retention implements the durable, append-only segment store
// (component B): one JSON-line file per UTC date, gzip compression of aged
// segments, and bounded total storage via age and byte-size eviction.
package retention

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/service_layer/domain/automation"
	"github.com/R3E-Network/service_layer/domain/telemetry"
	ctlerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
	"github.com/R3E-Network/service_layer/infrastructure/service"
)

const dateLayout = "2006-01-02"

// Config configures the store's directory, horizons, and maintenance timers.
type Config struct {
	StorageDir         string
	RetentionDays      int
	CompressAfterDays  int
	CleanupInterval    time.Duration
	CompressInterval   time.Duration
	MaxBytes           int64
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		RetentionDays:     30,
		CompressAfterDays: 7,
		CleanupInterval:   24 * time.Hour,
		CompressInterval:  6 * time.Hour,
		MaxBytes:          0,
	}
}

// Store is the retention store. Within one instance, mutating operations
// (Append, CompressAged, EvictAged, EnforceSizeCap) are serialized by mu;
// Query takes a read lock so it can run concurrently with them while still
// observing a consistent file state per segment.
type Store struct {
	cfg Config
	log *logging.Logger

	mu      sync.RWMutex
	started bool
	cron    *cron.Cron

	cleanupRuns   int
	compressRuns  int
	lastCleanup   time.Time
	lastCompress  time.Time
}

// New constructs a Store. The storage directory is created lazily on first
// write if missing.
func New(cfg Config, log *logging.Logger) *Store {
	return &Store{cfg: cfg, log: log}
}

func (s *Store) Name() string { return "retention" }

// Start launches the two independent maintenance timers (cleanup and
// compression) via robfig/cron, matching the Sampler's scheduling idiom.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ctlerrors.AlreadyStarted(s.Name())
	}
	if err := os.MkdirAll(s.cfg.StorageDir, 0o755); err != nil {
		s.mu.Unlock()
		return ctlerrors.TransientIO("mkdir storage dir", err)
	}
	s.started = true
	s.mu.Unlock()

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc("@every "+s.cfg.CleanupInterval.String(), func() { s.runCleanup(ctx) }); err != nil {
		return ctlerrors.ConfigError("invalid cleanup interval: " + err.Error())
	}
	if _, err := c.AddFunc("@every "+s.cfg.CompressInterval.String(), func() { s.runCompress(ctx) }); err != nil {
		return ctlerrors.ConfigError("invalid compress interval: " + err.Error())
	}
	s.cron = c
	c.Start()
	return nil
}

func (s *Store) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	s.started = false
	return nil
}

func (s *Store) Ready(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ctlerrors.New(ctlerrors.KindFatal, "retention store not started")
	}
	return nil
}

// OnSnapshot implements sampler.Subscriber, letting the Orchestrator wire
// the Sampler directly into the Retention Store.
func (s *Store) OnSnapshot(snapshot telemetry.MetricSnapshot) {
	if err := s.Append(snapshot); err != nil {
		s.log.WithError(err).Error("retention: dropped snapshot after append failure")
	}
}

func (s *Store) segmentPath(dateKey string, compressed bool) string {
	name := fmt.Sprintf("metrics-%s.jsonl", dateKey)
	if compressed {
		name += ".gz"
	}
	return filepath.Join(s.cfg.StorageDir, name)
}

// Append writes one JSON line to the segment for snapshot's UTC date,
// creating the segment if absent. I/O errors surface to the caller; the
// snapshot is dropped, never buffered.
func (s *Store) Append(snapshot telemetry.MetricSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.cfg.StorageDir, 0o755); err != nil {
		return ctlerrors.TransientIO("mkdir storage dir", err)
	}

	line, err := json.Marshal(snapshot)
	if err != nil {
		return ctlerrors.Wrap(ctlerrors.KindFatal, "snapshot not serializable", err)
	}

	path := s.segmentPath(snapshot.DateKey(), false)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return ctlerrors.TransientIO("open segment for append", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return ctlerrors.TransientIO("write segment line", err)
	}
	return nil
}

// Query returns every snapshot from segments dated within [from, to]
// inclusive, in ascending date order and file order within a date.
// Compressed segments are transparently decompressed.
func (s *Store) Query(from, to time.Time) ([]telemetry.MetricSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []telemetry.MetricSnapshot
	from = from.UTC()
	to = to.UTC()

	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dateKey := d.Format(dateLayout)
		snapshots, err := s.readSegment(dateKey)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return out, ctlerrors.TransientIO("read segment "+dateKey, err)
		}
		out = append(out, snapshots...)
	}
	return out, nil
}

func (s *Store) readSegment(dateKey string) ([]telemetry.MetricSnapshot, error) {
	plainPath := s.segmentPath(dateKey, false)
	gzPath := s.segmentPath(dateKey, true)

	path := plainPath
	compressed := false
	if _, err := os.Stat(plainPath); err != nil {
		if _, gzErr := os.Stat(gzPath); gzErr != nil {
			return nil, err
		}
		path = gzPath
		compressed = true
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reader io.Reader = f
	if compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}

	var snapshots []telemetry.MetricSnapshot
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var snap telemetry.MetricSnapshot
		if err := json.Unmarshal(line, &snap); err != nil {
			return snapshots, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, scanner.Err()
}

// listSegments returns every dated segment currently on disk, newest last.
func (s *Store) listSegments() ([]telemetry.Segment, error) {
	entries, err := os.ReadDir(s.cfg.StorageDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	byDate := make(map[string]*telemetry.Segment)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "metrics-") {
			continue
		}
		compressed := strings.HasSuffix(name, ".jsonl.gz")
		if !compressed && !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		dateKey := strings.TrimPrefix(name, "metrics-")
		dateKey = strings.TrimSuffix(dateKey, ".gz")
		dateKey = strings.TrimSuffix(dateKey, ".jsonl")

		info, err := entry.Info()
		if err != nil {
			continue
		}
		byDate[dateKey] = &telemetry.Segment{
			DateKey:    dateKey,
			Path:       filepath.Join(s.cfg.StorageDir, name),
			Compressed: compressed,
			Bytes:      info.Size(),
		}
	}

	out := make([]telemetry.Segment, 0, len(byDate))
	for _, seg := range byDate {
		out = append(out, *seg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateKey < out[j].DateKey })
	return out, nil
}

// CompressAged gzip-compresses every segment older than the compression
// horizon that is not already compressed, atomically unlinking the
// plaintext source. Idempotent: an already-compressed segment is skipped.
func (s *Store) CompressAged() (compressed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	horizon := time.Now().UTC().AddDate(0, 0, -s.cfg.CompressAfterDays).Format(dateLayout)
	segments, err := s.listSegments()
	if err != nil {
		return 0, ctlerrors.TransientIO("list segments", err)
	}

	for _, seg := range segments {
		if seg.Compressed || seg.DateKey >= horizon {
			continue
		}
		if err := s.compressSegment(seg); err != nil {
			s.log.WithError(err).Warn("retention: compress_aged failed for segment " + seg.DateKey)
			continue
		}
		compressed++
	}

	s.compressRuns++
	s.lastCompress = time.Now().UTC()
	return compressed, nil
}

func (s *Store) compressSegment(seg telemetry.Segment) error {
	src, err := os.Open(seg.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	dstPath := seg.Path + ".gz"
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		dst.Close()
		os.Remove(dstPath)
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(seg.Path)
}

// EvictAged deletes every segment (compressed or not) older than the
// retention horizon.
func (s *Store) EvictAged() (evicted int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	horizon := time.Now().UTC().AddDate(0, 0, -s.cfg.RetentionDays).Format(dateLayout)
	segments, err := s.listSegments()
	if err != nil {
		return 0, ctlerrors.TransientIO("list segments", err)
	}

	for _, seg := range segments {
		if seg.DateKey >= horizon {
			continue
		}
		if err := os.Remove(seg.Path); err != nil && !os.IsNotExist(err) {
			s.log.WithError(err).Warn("retention: evict_aged failed for segment " + seg.DateKey)
			continue
		}
		evicted++
	}

	s.cleanupRuns++
	s.lastCleanup = time.Now().UTC()
	return evicted, nil
}

// EnforceSizeCap deletes segments in ascending age order until total bytes
// fall under MaxBytes. A MaxBytes of 0 disables the cap.
func (s *Store) EnforceSizeCap() (evicted int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.MaxBytes <= 0 {
		return 0, nil
	}

	segments, err := s.listSegments()
	if err != nil {
		return 0, ctlerrors.TransientIO("list segments", err)
	}

	var total int64
	for _, seg := range segments {
		total += seg.Bytes
	}

	for _, seg := range segments {
		if total <= s.cfg.MaxBytes {
			break
		}
		if err := os.Remove(seg.Path); err != nil && !os.IsNotExist(err) {
			s.log.WithError(err).Warn("retention: enforce_size_cap failed for segment " + seg.DateKey)
			continue
		}
		total -= seg.Bytes
		evicted++
	}
	return evicted, nil
}

// TotalBytes returns the current total size of all segments on disk.
func (s *Store) TotalBytes() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	segments, err := s.listSegments()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, seg := range segments {
		total += seg.Bytes
	}
	return total, nil
}

func (s *Store) runCleanup(ctx context.Context) {
	if _, err := s.EvictAged(); err != nil {
		s.log.WithError(err).Error("retention: cleanup tick failed")
	}
	if _, err := s.EnforceSizeCap(); err != nil {
		s.log.WithError(err).Error("retention: size cap enforcement failed")
	}
}

func (s *Store) runCompress(ctx context.Context) {
	if _, err := s.CompressAged(); err != nil {
		s.log.WithError(err).Error("retention: compress tick failed")
	}
}

// Stats returns maintenance bookkeeping for the Orchestrator's status output.
func (s *Store) Stats() map[string]any {
	total, _ := s.TotalBytes()
	return service.NewStatsCollector().
		WithRLock(&s.mu).
		Add("cleanup_runs", s.cleanupRuns).
		Add("compress_runs", s.compressRuns).
		Add("last_cleanup", s.lastCleanup).
		Add("last_compress", s.lastCompress).
		Add("total_bytes", total).
		Add("started", s.started).
		Build()
}

// Schedules reports the store's two independent maintenance timers as
// periodic-task bookkeeping, for the Orchestrator's status output.
func (s *Store) Schedules() []automation.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := automation.StatusPaused
	if s.started {
		status = automation.StatusActive
	}
	return []automation.Schedule{
		{
			TaskName: s.Name() + ".cleanup",
			Interval: s.cfg.CleanupInterval,
			Status:   status,
			RunCount: s.cleanupRuns,
			LastRun:  s.lastCleanup,
			NextRun:  s.lastCleanup.Add(s.cfg.CleanupInterval),
		},
		{
			TaskName: s.Name() + ".compress",
			Interval: s.cfg.CompressInterval,
			Status:   status,
			RunCount: s.compressRuns,
			LastRun:  s.lastCompress,
			NextRun:  s.lastCompress.Add(s.cfg.CompressInterval),
		},
	}
}
