package view

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/yorozuya-cybersecurity/scanwatch/internal/filter"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/scanapi"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/scanapi/scanapitest"
	"github.com/yorozuya-cybersecurity/scanwatch/internal/schema"
)

const (
	waitFor = 3 * time.Second
	tickFor = 5 * time.Millisecond
)

func setup(t *testing.T) (scanapi.Client, *scanapitest.Server, *testingclock.FakeClock) {
	t.Helper()
	srv := scanapitest.NewServer()
	t.Cleanup(srv.Close)
	fc := testingclock.NewFakeClock(time.Date(2025, 9, 11, 13, 0, 0, 0, time.UTC))
	return scanapi.NewClient(srv.BaseURL(), scanapi.WithTimeout(2*time.Second)), srv, fc
}

func step(t *testing.T, fc *testingclock.FakeClock, d time.Duration) {
	t.Helper()
	require.Eventually(t, fc.HasWaiters, waitFor, tickFor)
	fc.Step(d)
}

func scan(id, status, risk string) map[string]any {
	p := map[string]any{
		"id":         id,
		"target":     id + ".example.org",
		"port_range": "1-1024",
		"status":     status,
		"started_at": "2025-09-11T13:17:22",
	}
	if risk != "" {
		p["overall_risk"] = risk
	}
	return p
}

func ids(rs []schema.ScanRecord) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestOverviewSnapshot(t *testing.T) {
	client, srv, fc := setup(t)
	srv.Put("a", scan("a", "completed", "high"))
	srv.Put("b", scan("b", "running", ""))
	srv.Put("c", scan("c", "running", ""))
	srv.Put("d", map[string]any{"scan_id": "d", "host": "legacy.example.org", "status": "failed"})

	v := NewOverview(client, WithClock(fc))
	t.Cleanup(v.Stop)
	require.NoError(t, v.Start(context.Background()))

	require.Eventually(t, func() bool { return v.Snapshot().Loaded }, waitFor, tickFor)
	snap := v.Snapshot()
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids(snap.Records))
	assert.Equal(t, 4, snap.Stats.Total)
	assert.Equal(t, 2, snap.Stats.Running)
	assert.Equal(t, 1, snap.Stats.HighRisk)
	require.NotNil(t, snap.Active)
	assert.Equal(t, "c", snap.Active.ID, "first running scan in list order")
	assert.Equal(t, fc.Now(), snap.UpdatedAt)
	assert.NoError(t, snap.Err)
}

func TestOverviewKeepsLastListOnError(t *testing.T) {
	client, srv, fc := setup(t)
	srv.Put("a", scan("a", "completed", "low"))

	v := NewOverview(client, WithClock(fc))
	t.Cleanup(v.Stop)
	require.NoError(t, v.Start(context.Background()))
	require.Eventually(t, func() bool { return v.Snapshot().Loaded }, waitFor, tickFor)

	srv.FailNext("GET /api/scans", http.StatusInternalServerError)
	step(t, fc, DefaultListInterval)
	require.Eventually(t, func() bool { return v.Snapshot().Err != nil }, waitFor, tickFor)

	snap := v.Snapshot()
	assert.Equal(t, scanapi.KindUnknown, scanapi.Classify(snap.Err))
	assert.Equal(t, []string{"a"}, ids(snap.Records), "stale data stays visible")

	step(t, fc, DefaultListInterval)
	assert.Eventually(t, func() bool { return v.Snapshot().Err == nil }, waitFor, tickFor)
}

func TestOverviewNoOverlappingRequests(t *testing.T) {
	client, srv, fc := setup(t)
	srv.Put("a", scan("a", "running", ""))
	release := srv.Hold()
	defer release()

	v := NewOverview(client, WithClock(fc))
	t.Cleanup(v.Stop)
	require.NoError(t, v.Start(context.Background()))
	require.Eventually(t, func() bool { return srv.Parked() == 1 }, waitFor, tickFor)

	for i := 0; i < 5; i++ {
		step(t, fc, DefaultListInterval)
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), srv.Requests("GET /api/scans"))

	release()
	require.Eventually(t, func() bool { return v.Snapshot().Loaded }, waitFor, tickFor)
	assert.Equal(t, int64(1), srv.MaxInflight())
}

func TestOverviewStartScan(t *testing.T) {
	client, srv, fc := setup(t)
	v := NewOverview(client, WithClock(fc))
	t.Cleanup(v.Stop)
	ctx := context.Background()

	_, err := v.StartScan(ctx, "", "1-1024")
	var valErr *scanapi.ValidationError
	require.ErrorAs(t, err, &valErr)

	_, err = v.StartScan(ctx, "localhost", "1-1024")
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, err.Error(), "Invalid target")

	id, err := v.StartScan(ctx, "scanme.example.org", "1-5000")
	require.NoError(t, err)
	assert.True(t, srv.Has(id))
	assert.Eventually(t, func() bool {
		snap := v.Snapshot()
		return len(snap.Records) == 1 && snap.Records[0].ID == id && snap.Stats.Pending == 1
	}, waitFor, tickFor, "the new scan is picked up without waiting for a tick")
}

func TestOverviewSubscribe(t *testing.T) {
	client, srv, fc := setup(t)
	srv.Put("a", scan("a", "running", ""))

	v := NewOverview(client, WithClock(fc))
	t.Cleanup(v.Stop)
	updates, cancel := v.Subscribe()
	defer cancel()

	require.NoError(t, v.Start(context.Background()))
	select {
	case snap := <-updates:
		assert.Equal(t, []string{"a"}, ids(snap.Records))
	case <-time.After(waitFor):
		t.Fatal("no snapshot delivered")
	}

	cancel()
	_, open := <-updates
	assert.False(t, open)
}

func TestHistoryCriteria(t *testing.T) {
	client, srv, fc := setup(t)
	srv.Put("a", scan("a", "completed", "high"))
	srv.Put("b", scan("b", "completed", "low"))
	srv.Put("c", scan("c", "running", ""))

	v := NewHistory(client, WithClock(fc))
	t.Cleanup(v.Stop)
	require.NoError(t, v.Start(context.Background()))
	require.Eventually(t, func() bool { return v.Snapshot().Loaded }, waitFor, tickFor)

	v.SetCriteria(filter.Criteria{Status: "completed"})
	snap := v.Snapshot()
	assert.Equal(t, []string{"b", "a"}, ids(snap.Records))
	assert.Equal(t, 3, snap.Stats.Total, "stats ignore the filter")

	v.SetCriteria(filter.Criteria{Status: "all", Risk: "high"})
	assert.Equal(t, []string{"a"}, ids(v.Snapshot().Records))

	v.SetCriteria(filter.Criteria{Search: "C.EXAMPLE"})
	assert.Equal(t, []string{"c"}, ids(v.Snapshot().Records))

	v.SetCriteria(filter.Criteria{})
	assert.Equal(t, []string{"c", "b", "a"}, ids(v.Snapshot().Records))
}

func TestHistoryDelete(t *testing.T) {
	client, srv, fc := setup(t)
	srv.Put("a", scan("a", "completed", "high"))
	srv.Put("b", scan("b", "completed", ""))

	v := NewHistory(client, WithClock(fc))
	t.Cleanup(v.Stop)
	require.NoError(t, v.Start(context.Background()))
	require.Eventually(t, func() bool { return v.Snapshot().Loaded }, waitFor, tickFor)

	msg, err := v.Delete(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "Scan deleted successfully", msg)
	assert.Equal(t, []string{"b"}, ids(v.Snapshot().Records), "removed before the next poll")
	assert.Equal(t, 0, v.Snapshot().Stats.HighRisk)

	step(t, fc, DefaultListInterval)
	require.Eventually(t, func() bool { return srv.Requests("GET /api/scans") == 2 }, waitFor, tickFor)
	assert.Equal(t, []string{"b"}, ids(v.Snapshot().Records))

	_, err = v.Delete(context.Background(), "a")
	assert.True(t, scanapi.IsNotFound(err))
}

func TestHistoryDeleteRaceDoesNotResurrect(t *testing.T) {
	client, srv, fc := setup(t)
	srv.Put("a", scan("a", "completed", ""))
	srv.Put("b", scan("b", "running", ""))

	v := NewHistory(client, WithClock(fc))
	t.Cleanup(v.Stop)
	require.NoError(t, v.Start(context.Background()))
	require.Eventually(t, func() bool { return v.Snapshot().Loaded }, waitFor, tickFor)

	// a list response containing "a" is computed, then held in flight
	release := srv.Hold()
	defer release()
	step(t, fc, DefaultListInterval)
	require.Eventually(t, func() bool { return srv.Parked() == 1 }, waitFor, tickFor)

	_, err := v.Delete(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(v.Snapshot().Records))

	release()
	require.Eventually(t, func() bool { return !v.ctrl.Busy() }, waitFor, tickFor)
	assert.Equal(t, []string{"b"}, ids(v.Snapshot().Records), "late response must not bring it back")
}

func TestHistoryDeleteFailureKeepsRecord(t *testing.T) {
	client, srv, fc := setup(t)
	srv.Put("a", scan("a", "completed", ""))

	v := NewHistory(client, WithClock(fc))
	t.Cleanup(v.Stop)
	require.NoError(t, v.Start(context.Background()))
	require.Eventually(t, func() bool { return v.Snapshot().Loaded }, waitFor, tickFor)

	srv.FailNext("DELETE /api/scan/:id", http.StatusInternalServerError)
	_, err := v.Delete(context.Background(), "a")
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, ids(v.Snapshot().Records))
}

func TestHistoryRefusesStatusRegression(t *testing.T) {
	client, srv, fc := setup(t)
	srv.Put("a", scan("a", "completed", "high"))
	srv.Put("b", scan("b", "pending", ""))

	v := NewHistory(client, WithClock(fc))
	t.Cleanup(v.Stop)
	require.NoError(t, v.Start(context.Background()))
	require.Eventually(t, func() bool { return v.Snapshot().Loaded }, waitFor, tickFor)

	srv.Put("a", scan("a", "running", ""))
	srv.Put("b", scan("b", "running", ""))
	step(t, fc, DefaultListInterval)
	require.Eventually(t, func() bool {
		return srv.Requests("GET /api/scans") == 2 && !v.ctrl.Busy()
	}, waitFor, tickFor)

	snap := v.Snapshot()
	require.Equal(t, []string{"b", "a"}, ids(snap.Records))
	assert.Equal(t, schema.StatusRunning, snap.Records[0].Status, "forward moves still apply")
	assert.Equal(t, schema.StatusCompleted, snap.Records[1].Status)
	assert.Equal(t, schema.RiskHigh, snap.Records[1].OverallRisk)
	assert.Equal(t, 1, snap.Stats.Completed)
	assert.Equal(t, 1, snap.Stats.Running)
}

func TestOverviewRefusesStatusRegression(t *testing.T) {
	client, srv, fc := setup(t)
	srv.Put("a", scan("a", "failed", ""))

	v := NewOverview(client, WithClock(fc))
	t.Cleanup(v.Stop)
	require.NoError(t, v.Start(context.Background()))
	require.Eventually(t, func() bool { return v.Snapshot().Loaded }, waitFor, tickFor)

	srv.Put("a", scan("a", "running", ""))
	step(t, fc, DefaultListInterval)
	require.Eventually(t, func() bool {
		return srv.Requests("GET /api/scans") == 2 && !v.ctrl.Busy()
	}, waitFor, tickFor)

	snap := v.Snapshot()
	require.Len(t, snap.Records, 1)
	assert.Equal(t, schema.StatusFailed, snap.Records[0].Status)
	assert.Nil(t, snap.Active, "a finished scan is never reported as active again")
	assert.Equal(t, 0, snap.Stats.Running)
}

func TestDetailPollsUntilTerminal(t *testing.T) {
	client, srv, fc := setup(t)
	srv.Put("s1", scan("s1", "running", ""))

	v := NewDetail(client, "s1", WithClock(fc))
	t.Cleanup(v.Stop)
	require.NoError(t, v.Start(context.Background()))
	require.Eventually(t, func() bool { return v.Snapshot().Record != nil }, waitFor, tickFor)
	assert.Equal(t, schema.StatusRunning, v.Snapshot().Record.Status)

	srv.Update("s1", func(p map[string]any) {
		p["status"] = "completed"
		p["overall_risk"] = "medium"
		p["completed_at"] = "2025-09-11T13:19:02"
		p["port_results"] = []any{map[string]any{"port": 443, "state": "open", "service": "https"}}
	})
	step(t, fc, DefaultDetailInterval)

	select {
	case <-v.Done():
	case <-time.After(waitFor):
		t.Fatal("detail view kept polling after completion")
	}
	snap := v.Snapshot()
	require.True(t, snap.Terminal())
	assert.Equal(t, schema.RiskMedium, snap.Record.OverallRisk)
	assert.Equal(t, 1, snap.Record.Summary.PortsScanned)

	fc.Step(10 * DefaultDetailInterval)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(2), srv.Requests("GET /api/scan/:id"), "no tick after a terminal status")
}

func TestDetailCompletedOnFirstFetch(t *testing.T) {
	client, srv, fc := setup(t)
	srv.Put("done", scan("done", "failed", ""))

	v := NewDetail(client, "done", WithClock(fc))
	t.Cleanup(v.Stop)
	require.NoError(t, v.Start(context.Background()))

	<-v.Done()
	assert.True(t, v.Snapshot().Terminal())
	assert.Equal(t, int64(1), srv.Requests("GET /api/scan/:id"))
}

func TestDetailRefusesRegression(t *testing.T) {
	client, srv, fc := setup(t)
	srv.Put("s1", scan("s1", "running", ""))

	v := NewDetail(client, "s1", WithClock(fc))
	t.Cleanup(v.Stop)
	require.NoError(t, v.Start(context.Background()))
	require.Eventually(t, func() bool { return v.Snapshot().Record != nil }, waitFor, tickFor)

	srv.Update("s1", func(p map[string]any) { p["status"] = "pending" })
	step(t, fc, DefaultDetailInterval)
	require.Eventually(t, func() bool { return srv.Requests("GET /api/scan/:id") == 2 }, waitFor, tickFor)
	require.Eventually(t, func() bool { return !v.ctrl.Busy() }, waitFor, tickFor)

	assert.Equal(t, schema.StatusRunning, v.Snapshot().Record.Status)
}

func TestDetailIgnoresOtherScan(t *testing.T) {
	client, srv, fc := setup(t)
	srv.Put("s1", scan("other", "running", ""))

	v := NewDetail(client, "s1", WithClock(fc))
	t.Cleanup(v.Stop)
	require.NoError(t, v.Start(context.Background()))
	require.Eventually(t, func() bool { return srv.Requests("GET /api/scan/:id") == 1 }, waitFor, tickFor)
	require.Eventually(t, func() bool { return !v.ctrl.Busy() }, waitFor, tickFor)

	assert.Nil(t, v.Snapshot().Record)
}

func TestDetailShowDropsPreviousScan(t *testing.T) {
	client, srv, fc := setup(t)
	srv.Put("a", scan("a", "running", ""))
	srv.Put("b", scan("b", "running", ""))

	release := srv.Hold()
	defer release()

	v := NewDetail(client, "a", WithClock(fc))
	t.Cleanup(v.Stop)
	ctx := context.Background()
	require.NoError(t, v.Start(ctx))
	require.Eventually(t, func() bool { return srv.Parked() == 1 }, waitFor, tickFor)

	require.NoError(t, v.Show(ctx, "b"))
	release()
	require.Eventually(t, func() bool { return !v.ctrl.Busy() }, waitFor, tickFor)
	assert.Nil(t, v.Snapshot().Record, "response for a arrived after switching to b")

	step(t, fc, DefaultDetailInterval)
	require.Eventually(t, func() bool { return v.Snapshot().Record != nil }, waitFor, tickFor)
	assert.Equal(t, "b", v.Snapshot().Record.ID)
}

func TestDetailNotFound(t *testing.T) {
	client, _, fc := setup(t)

	v := NewDetail(client, "missing", WithClock(fc))
	t.Cleanup(v.Stop)
	require.NoError(t, v.Start(context.Background()))

	select {
	case <-v.Done():
	case <-time.After(waitFor):
		t.Fatal("detail view kept polling a missing scan")
	}
	snap := v.Snapshot()
	assert.True(t, snap.NotFound)
	assert.Nil(t, snap.Record)
	assert.True(t, scanapi.IsNotFound(snap.Err))
}

func TestDetailDelete(t *testing.T) {
	client, srv, fc := setup(t)
	srv.Put("s1", scan("s1", "running", ""))

	v := NewDetail(client, "s1", WithClock(fc))
	t.Cleanup(v.Stop)
	ctx := context.Background()
	require.NoError(t, v.Start(ctx))
	require.Eventually(t, func() bool { return v.Snapshot().Record != nil }, waitFor, tickFor)

	_, err := v.Delete(ctx)
	require.NoError(t, err)
	<-v.Done()

	snap := v.Snapshot()
	assert.True(t, snap.Deleted)
	assert.Nil(t, snap.Record)
	assert.False(t, srv.Has("s1"))
	assert.False(t, v.Refresh(ctx))

	_, err = v.Delete(ctx)
	assert.ErrorIs(t, err, ErrNoScan)
}

func TestDetailRequiresID(t *testing.T) {
	client, _, _ := setup(t)
	assert.ErrorIs(t, NewDetail(client, "").Start(context.Background()), ErrNoScan)
}
