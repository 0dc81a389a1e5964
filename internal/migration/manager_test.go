package migration

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medinor/dashboard/internal/observability"
	"github.com/medinor/dashboard/model"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newTestManager(t *testing.T, b *fakeBackend) (*Manager, *MemoryStore, *clock, *observability.Metrics) {
	t.Helper()
	store := NewMemoryStore()
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := observability.InitMetrics(prometheus.NewRegistry())
	mgr := NewManager(store, time.Hour, Deps{Backend: b, Metrics: m, Now: clk.Now})
	return mgr, store, clk, m
}

func TestManager_fullFlowAcrossRequests(t *testing.T) {
	b := &fakeBackend{analysis: clientsAnalysis, commitResp: created(2)}
	mgr, store, clk, _ := newTestManager(t, b)
	ctx := context.Background()

	snap, err := mgr.Create(ctx, "alice", model.EntityClients)
	require.NoError(t, err)
	require.NotEmpty(t, snap.ID)
	require.NotNil(t, snap.ExpiresAt)
	assert.Equal(t, clk.t.Add(time.Hour), *snap.ExpiresAt)

	snap, err = mgr.Accept(ctx, "alice", snap.ID, clientsFile())
	require.NoError(t, err)
	assert.Equal(t, model.MigrationParsed, snap.State)

	snap, err = mgr.Process(ctx, "alice", snap.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MigrationAnalyzed, snap.State)

	snap, err = mgr.Execute(ctx, "alice", snap.ID)
	require.NoError(t, err)
	assert.True(t, snap.MigrationComplete)

	stored, err := store.Get(ctx, "alice", snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Version, stored.Version)
	assert.Equal(t, 2, stored.CreatedCount)
	assert.False(t, stored.Migrating)
}

func TestManager_failureIsSavedAndReturned(t *testing.T) {
	b := &fakeBackend{analyzeErr: model.NewBackendRejectedError(400, "Invalid clients payload")}
	mgr, _, _, _ := newTestManager(t, b)
	ctx := context.Background()
	snap, _ := mgr.Create(ctx, "alice", model.EntityClients)
	_, _ = mgr.Accept(ctx, "alice", snap.ID, clientsFile())

	snap, err := mgr.Process(ctx, "alice", snap.ID)

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, "Invalid clients payload", snap.Error)

	got, err := mgr.Get(ctx, "alice", snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "Invalid clients payload", got.Error)

	got, err = mgr.ClearError(ctx, "alice", snap.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Error)
	assert.Equal(t, model.MigrationParsed, got.State)
}

func TestManager_busyFlagIsSharedThroughStore(t *testing.T) {
	b := &fakeBackend{analysis: clientsAnalysis, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	mgr, store, _, _ := newTestManager(t, b)
	ctx := context.Background()
	snap, _ := mgr.Create(ctx, "alice", model.EntityClients)
	_, _ = mgr.Accept(ctx, "alice", snap.ID, clientsFile())

	done := make(chan error, 1)
	go func() {
		_, err := mgr.Process(ctx, "alice", snap.ID)
		done <- err
	}()
	<-b.entered

	stored, _ := store.Get(ctx, "alice", snap.ID)
	assert.True(t, stored.Processing)

	_, err := mgr.Process(ctx, "alice", snap.ID)
	assert.Equal(t, model.ErrBusy, model.CodeOf(err))

	close(b.gate)
	require.NoError(t, <-done)
	stored, _ = store.Get(ctx, "alice", snap.ID)
	assert.False(t, stored.Processing)
	assert.Equal(t, model.MigrationAnalyzed, stored.State)
}

func TestManager_clearWinsOverInFlightTransition(t *testing.T) {
	b := &fakeBackend{analysis: clientsAnalysis, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	mgr, store, _, _ := newTestManager(t, b)
	ctx := context.Background()
	snap, _ := mgr.Create(ctx, "alice", model.EntityClients)
	_, _ = mgr.Accept(ctx, "alice", snap.ID, clientsFile())

	done := make(chan error, 1)
	go func() {
		_, err := mgr.Process(ctx, "alice", snap.ID)
		done <- err
	}()
	<-b.entered

	cleared, err := mgr.Clear(ctx, "alice", snap.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MigrationIdle, cleared.State)

	close(b.gate)
	assert.Equal(t, model.ErrConflict, model.CodeOf(<-done))

	stored, _ := store.Get(ctx, "alice", snap.ID)
	assert.Equal(t, model.MigrationIdle, stored.State)
	assert.Empty(t, stored.ProcessedData)
}

// startBlockedProcess accepts a file and leaves a Process call waiting in
// the backend until the returned release func is called.
func startBlockedProcess(t *testing.T, mgr *Manager, b *fakeBackend) (model.MigrationSnapshot, func() (model.MigrationSnapshot, error)) {
	t.Helper()
	ctx := context.Background()
	snap, err := mgr.Create(ctx, "alice", model.EntityClients)
	require.NoError(t, err)
	_, err = mgr.Accept(ctx, "alice", snap.ID, clientsFile())
	require.NoError(t, err)

	type result struct {
		snap model.MigrationSnapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		got, err := mgr.Process(ctx, "alice", snap.ID)
		done <- result{got, err}
	}()
	<-b.entered
	return snap, func() (model.MigrationSnapshot, error) {
		close(b.gate)
		r := <-done
		return r.snap, r.err
	}
}

func TestManager_clearErrorDuringProcessKeepsTransition(t *testing.T) {
	b := &fakeBackend{analysis: clientsAnalysis, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	mgr, store, _, _ := newTestManager(t, b)
	ctx := context.Background()
	snap, release := startBlockedProcess(t, mgr, b)

	before, _ := store.Get(ctx, "alice", snap.ID)
	got, err := mgr.ClearError(ctx, "alice", snap.ID)
	require.NoError(t, err)
	assert.True(t, got.Processing)

	after, _ := store.Get(ctx, "alice", snap.ID)
	assert.Equal(t, before.Version, after.Version)

	final, err := release()
	require.NoError(t, err)
	assert.Equal(t, model.MigrationAnalyzed, final.State)

	stored, _ := store.Get(ctx, "alice", snap.ID)
	assert.False(t, stored.Processing)
	assert.Empty(t, stored.RunID)
	assert.Equal(t, model.MigrationAnalyzed, stored.State)
	assert.JSONEq(t, string(clientsAnalysis), string(stored.ProcessedData))
}

func TestManager_otherTransitionsDuringProcessAreBusy(t *testing.T) {
	b := &fakeBackend{analysis: clientsAnalysis, commitResp: created(2), gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	mgr, store, _, _ := newTestManager(t, b)
	ctx := context.Background()
	snap, release := startBlockedProcess(t, mgr, b)
	before, _ := store.Get(ctx, "alice", snap.ID)

	_, err := mgr.Execute(ctx, "alice", snap.ID)
	assert.Equal(t, model.ErrBusy, model.CodeOf(err))
	_, err = mgr.Accept(ctx, "alice", snap.ID, clientsFile())
	assert.Equal(t, model.ErrBusy, model.CodeOf(err))

	after, _ := store.Get(ctx, "alice", snap.ID)
	assert.Equal(t, before.Version, after.Version)
	assert.Empty(t, after.Error)

	_, err = release()
	require.NoError(t, err)

	got, err := mgr.Execute(ctx, "alice", snap.ID)
	require.NoError(t, err)
	assert.True(t, got.MigrationComplete)
	assert.Equal(t, 2, got.CreatedCount)
}

func TestManager_finalSaveSurvivesConcurrentWrite(t *testing.T) {
	b := &fakeBackend{analysis: clientsAnalysis, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	mgr, store, _, _ := newTestManager(t, b)
	ctx := context.Background()
	snap, release := startBlockedProcess(t, mgr, b)

	// Another replica touches the session without lowering the flag.
	stored, _ := store.Get(ctx, "alice", snap.ID)
	require.NotEmpty(t, stored.RunID)
	require.NoError(t, store.Update(ctx, stored))

	final, err := release()
	require.NoError(t, err)
	assert.Equal(t, model.MigrationAnalyzed, final.State)

	stored, _ = store.Get(ctx, "alice", snap.ID)
	assert.Equal(t, final.Version, stored.Version)
	assert.False(t, stored.Processing)
	assert.Equal(t, model.MigrationAnalyzed, stored.State)
}

func TestManager_cancelledRequestStillLowersFlag(t *testing.T) {
	b := &fakeBackend{analysis: clientsAnalysis, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	mgr, store, _, _ := newTestManager(t, b)
	snap, _ := mgr.Create(context.Background(), "alice", model.EntityClients)
	_, _ = mgr.Accept(context.Background(), "alice", snap.ID, clientsFile())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := mgr.Process(ctx, "alice", snap.ID)
		done <- err
	}()
	<-b.entered
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	stored, _ := store.Get(context.Background(), "alice", snap.ID)
	assert.False(t, stored.Processing)
	assert.Equal(t, model.MigrationParsed, stored.State)
}

func TestManager_sessionsAreScopedToSubject(t *testing.T) {
	mgr, _, _, _ := newTestManager(t, &fakeBackend{})
	ctx := context.Background()
	snap, _ := mgr.Create(ctx, "alice", model.EntityProducts)

	_, err := mgr.Process(ctx, "bob", snap.ID)
	assert.Equal(t, model.ErrNotFound, model.CodeOf(err))

	_, err = mgr.Create(ctx, "alice", model.EntityAdmins)
	assert.Equal(t, model.ErrNotFound, model.CodeOf(err))
}

func TestManager_sweepRemovesExpired(t *testing.T) {
	mgr, store, clk, m := newTestManager(t, &fakeBackend{})
	ctx := context.Background()
	old, _ := mgr.Create(ctx, "alice", model.EntityClients)
	clk.t = clk.t.Add(30 * time.Minute)
	fresh, _ := mgr.Create(ctx, "alice", model.EntityProducts)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MigrationActiveSessions))

	clk.t = clk.t.Add(45 * time.Minute)
	n, err := mgr.Sweep(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = store.Get(ctx, "alice", old.ID)
	assert.Equal(t, model.ErrNotFound, model.CodeOf(err))
	_, err = store.Get(ctx, "alice", fresh.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MigrationActiveSessions))

	require.NoError(t, mgr.Delete(ctx, "alice", fresh.ID))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.MigrationActiveSessions))
}
