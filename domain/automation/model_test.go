package automation

import (
	"testing"
	"time"
)

func TestSchedule_Due(t *testing.T) {
	now := time.Now().UTC()

	active := Schedule{
		TaskName: "sampler",
		Interval: time.Minute,
		Status:   StatusActive,
		RunCount: 3,
		LastRun:  now.Add(-time.Minute),
		NextRun:  now,
	}
	if !active.Due(now) {
		t.Fatalf("expected an active schedule at its next run time to be due")
	}
	if !active.Due(now.Add(time.Second)) {
		t.Fatalf("expected a schedule past its next run time to remain due")
	}

	future := active
	future.NextRun = now.Add(time.Hour)
	if future.Due(now) {
		t.Fatalf("expected a schedule whose next run is in the future to not be due")
	}

	paused := active
	paused.Status = StatusPaused
	if paused.Due(now) {
		t.Fatalf("expected a paused schedule to never be due")
	}

	unset := Schedule{Status: StatusActive}
	if unset.Due(now) {
		t.Fatalf("expected a schedule with no NextRun to not be due")
	}
}
