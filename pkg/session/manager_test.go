package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/lcqe/pkg/result"
	"github.com/charlie0129/lcqe/pkg/spectral"
)

func set(v float64) *result.Set {
	return result.New(result.Snapshot{
		Grid:      spectral.MustGrid(400, 500),
		Names:     []string{"J1"},
		Measured:  [][]float64{{v, v}},
		Corrected: [][]float64{{v, v}},
		Currents:  []float64{v},
	})
}

func immediate(v float64) Run {
	return func(context.Context) (*result.Set, error) { return set(v), nil }
}

// blocking returns a Run that signals started and then waits for ctx.
func blocking(started chan<- struct{}) Run {
	return func(ctx context.Context) (*result.Set, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func TestSubmitStoresLatest(t *testing.T) {
	m := NewManager()

	r, err := m.Submit(context.Background(), "s1", "r1", immediate(0.5))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.5, 0.5}}, r.Corrected())

	latest, info, err := m.Latest("s1")
	require.NoError(t, err)
	assert.Same(t, r, latest)
	assert.Equal(t, 1, info.Runs)
	assert.True(t, info.HasResult)
	assert.False(t, info.Running)
}

func TestNewerRequestSupersedesInFlight(t *testing.T) {
	m := NewManager()
	var superseded []string
	m.OnSuperseded = func(sessionID, requestID string) { superseded = append(superseded, sessionID+"/"+requestID) }

	started := make(chan struct{})
	var wg sync.WaitGroup
	var staleErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, staleErr = m.Submit(context.Background(), "s1", "old", blocking(started))
	}()
	<-started

	info, err := m.Get("s1")
	require.NoError(t, err)
	assert.True(t, info.Running)

	r, err := m.Submit(context.Background(), "s1", "new", immediate(0.7))
	require.NoError(t, err)
	wg.Wait()

	assert.ErrorIs(t, staleErr, ErrSuperseded)
	assert.Equal(t, []string{"s1/old"}, superseded)

	latest, _, err := m.Latest("s1")
	require.NoError(t, err)
	assert.Same(t, r, latest)
}

func TestSessionsAreIndependent(t *testing.T) {
	m := NewManager()
	started := make(chan struct{})
	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_, err := m.Submit(ctx, "a", "r1", blocking(started))
		done <- err
	}()
	<-started

	_, err := m.Submit(context.Background(), "b", "r2", immediate(0.1))
	require.NoError(t, err)

	info, err := m.Get("a")
	require.NoError(t, err)
	assert.True(t, info.Running, "a run in another session is untouched")

	cancel()
	err = <-done
	assert.ErrorIs(t, err, context.Canceled)

	info, err = m.Get("a")
	require.NoError(t, err)
	assert.False(t, info.Running)
	assert.NotEmpty(t, info.LastError)
}

func TestFailedRunKeepsPreviousResult(t *testing.T) {
	m := NewManager()
	first, err := m.Submit(context.Background(), "s", "r1", immediate(0.3))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = m.Submit(context.Background(), "s", "r2", func(context.Context) (*result.Set, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	latest, info, err := m.Latest("s")
	require.NoError(t, err)
	assert.Same(t, first, latest)
	assert.Equal(t, "boom", info.LastError)
	assert.Equal(t, 2, info.Runs)
}

func TestDeleteCancelsRun(t *testing.T) {
	m := NewManager()
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := m.Submit(context.Background(), "s", "r1", blocking(started))
		done <- err
	}()
	<-started

	require.NoError(t, m.Delete("s"))
	assert.ErrorIs(t, <-done, ErrSuperseded)

	_, _, err := m.Latest("s")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Delete("s"), ErrNotFound)
}

func TestLatestWithoutResult(t *testing.T) {
	m := NewManager()
	_, _, err := m.Latest("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, _ = m.Submit(context.Background(), "s", "r", func(context.Context) (*result.Set, error) {
		return nil, errors.New("invalid")
	})
	_, info, err := m.Latest("s")
	assert.ErrorIs(t, err, ErrNoResult)
	assert.Equal(t, "s", info.ID)
}

func TestPrune(t *testing.T) {
	m := NewManager()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	_, _ = m.Submit(context.Background(), "old", "r", immediate(0.1))
	now = now.Add(time.Hour)
	_, _ = m.Submit(context.Background(), "fresh", "r", immediate(0.1))

	assert.Equal(t, 1, m.Prune(30*time.Minute))
	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, "fresh", list[0].ID)
	assert.Equal(t, 1, m.Len())
}

func TestListSorted(t *testing.T) {
	m := NewManager()
	for _, id := range []string{"c", "a", "b"} {
		_, _ = m.Submit(context.Background(), id, NewID(), immediate(0.1))
	}
	var ids []string
	for _, info := range m.List() {
		ids = append(ids, info.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}
