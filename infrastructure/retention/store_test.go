package retention

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/R3E-Network/service_layer/domain/telemetry"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	dir := t.TempDir()
	cfg.StorageDir = dir
	return New(cfg, logging.New("retention-test", "error", "text"))
}

func snapshotAt(ts time.Time) telemetry.MetricSnapshot {
	return telemetry.MetricSnapshot{TimestampMS: ts.UnixMilli()}
}

func TestStore_AppendAndQueryRoundTrip(t *testing.T) {
	s := newTestStore(t, DefaultConfig())

	now := time.Now().UTC()
	if err := s.Append(snapshotAt(now)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Append(snapshotAt(now.Add(time.Minute))); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := s.Query(now.AddDate(0, 0, -1), now.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(got))
	}
}

func TestStore_QueryEmptyRangeReturnsNoError(t *testing.T) {
	s := newTestStore(t, DefaultConfig())

	now := time.Now().UTC()
	got, err := s.Query(now.AddDate(0, 0, -5), now.AddDate(0, 0, -3))
	if err != nil {
		t.Fatalf("Query on empty range should not error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected 0 snapshots, got %d", len(got))
	}
}

func TestStore_CompressAgedCompressesOldSegmentAndLeavesRecentOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompressAfterDays = 7
	s := newTestStore(t, cfg)

	old := time.Now().UTC().AddDate(0, 0, -10)
	recent := time.Now().UTC()

	if err := s.Append(snapshotAt(old)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Append(snapshotAt(recent)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	compressed, err := s.CompressAged()
	if err != nil {
		t.Fatalf("CompressAged failed: %v", err)
	}
	if compressed != 1 {
		t.Fatalf("expected 1 segment compressed, got %d", compressed)
	}

	if _, err := os.Stat(s.segmentPath(old.Format(dateLayout), true)); err != nil {
		t.Errorf("expected compressed segment to exist: %v", err)
	}
	if _, err := os.Stat(s.segmentPath(old.Format(dateLayout), false)); !os.IsNotExist(err) {
		t.Errorf("expected plaintext segment to be removed, stat err = %v", err)
	}
	if _, err := os.Stat(s.segmentPath(recent.Format(dateLayout), false)); err != nil {
		t.Errorf("expected recent segment to remain plaintext: %v", err)
	}
}

func TestStore_CompressAgedIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompressAfterDays = 7
	s := newTestStore(t, cfg)

	old := time.Now().UTC().AddDate(0, 0, -10)
	if err := s.Append(snapshotAt(old)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if _, err := s.CompressAged(); err != nil {
		t.Fatalf("first CompressAged failed: %v", err)
	}
	second, err := s.CompressAged()
	if err != nil {
		t.Fatalf("second CompressAged failed: %v", err)
	}
	if second != 0 {
		t.Errorf("expected second CompressAged run to be a no-op, compressed %d", second)
	}
}

func TestStore_QueryReadsCompressedSegments(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompressAfterDays = 7
	s := newTestStore(t, cfg)

	old := time.Now().UTC().AddDate(0, 0, -10)
	if err := s.Append(snapshotAt(old)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := s.CompressAged(); err != nil {
		t.Fatalf("CompressAged failed: %v", err)
	}

	got, err := s.Query(old.AddDate(0, 0, -1), old.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 snapshot from compressed segment, got %d", len(got))
	}
}

func TestStore_EvictAgedRemovesOldSegments(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetentionDays = 30
	s := newTestStore(t, cfg)

	veryOld := time.Now().UTC().AddDate(0, 0, -40)
	recent := time.Now().UTC()

	if err := s.Append(snapshotAt(veryOld)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Append(snapshotAt(recent)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	evicted, err := s.EvictAged()
	if err != nil {
		t.Fatalf("EvictAged failed: %v", err)
	}
	if evicted != 1 {
		t.Fatalf("expected 1 segment evicted, got %d", evicted)
	}

	segments, err := s.listSegments()
	if err != nil {
		t.Fatalf("listSegments failed: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment remaining, got %d", len(segments))
	}
}

func TestStore_EnforceSizeCapDisabledByDefault(t *testing.T) {
	s := newTestStore(t, DefaultConfig())

	if err := s.Append(snapshotAt(time.Now().UTC())); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	evicted, err := s.EnforceSizeCap()
	if err != nil {
		t.Fatalf("EnforceSizeCap failed: %v", err)
	}
	if evicted != 0 {
		t.Errorf("expected no eviction with MaxBytes=0, got %d", evicted)
	}
}

func TestStore_EnforceSizeCapEvictsOldestFirst(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestStore(t, cfg)

	day1 := time.Now().UTC().AddDate(0, 0, -3)
	day2 := time.Now().UTC().AddDate(0, 0, -2)
	day3 := time.Now().UTC().AddDate(0, 0, -1)

	for _, d := range []time.Time{day1, day2, day3} {
		if err := s.Append(snapshotAt(d)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	total, err := s.TotalBytes()
	if err != nil {
		t.Fatalf("TotalBytes failed: %v", err)
	}

	s.mu.Lock()
	s.cfg.MaxBytes = total - 1
	s.mu.Unlock()

	evicted, err := s.EnforceSizeCap()
	if err != nil {
		t.Fatalf("EnforceSizeCap failed: %v", err)
	}
	if evicted == 0 {
		t.Error("expected at least one segment evicted under a tight cap")
	}

	if _, err := os.Stat(s.segmentPath(day1.Format(dateLayout), false)); !os.IsNotExist(err) {
		t.Errorf("expected oldest segment to be evicted first, stat err = %v", err)
	}
}

func TestStore_StartTwiceFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CleanupInterval = time.Hour
	cfg.CompressInterval = time.Hour
	s := newTestStore(t, cfg)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	defer s.Stop(context.Background())

	if err := s.Start(context.Background()); err == nil {
		t.Error("expected second Start to fail")
	}
}
