package ranking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/pagecache/internal/games"
)

type fakeRepo struct {
	mu      sync.Mutex
	dirty   []games.Game
	scores  map[string]int64
	last    []games.Game
	failSet error
}

func (r *fakeRepo) Dirty(_ context.Context, limit int) ([]games.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.dirty) > limit {
		return append([]games.Game(nil), r.dirty[:limit]...), nil
	}
	return append([]games.Game(nil), r.dirty...), nil
}

func (r *fakeRepo) SetScores(_ context.Context, scored []games.Game) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSet != nil {
		return r.failSet
	}
	if r.scores == nil {
		r.scores = map[string]int64{}
	}
	r.last = append([]games.Game(nil), scored...)
	for _, g := range scored {
		r.scores[g.ID] = g.Score
	}
	kept := r.dirty[:0]
	for _, g := range r.dirty {
		if _, ok := r.scores[g.ID]; !ok {
			kept = append(kept, g)
		}
	}
	r.dirty = kept
	return nil
}

type fakeListings struct {
	calls atomic.Int32
	err   error
}

func (l *fakeListings) InvalidateAll(context.Context) error {
	l.calls.Add(1)
	return l.err
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newJob(t *testing.T, repo Repository, l Listings, batch int) *Job {
	t.Helper()
	logger, _ := test.NewNullLogger()
	j, err := New(repo, l, Options{Interval: time.Hour, Workers: 3, BatchSize: batch, Logger: logger})
	require.NoError(t, err)
	j.now = func() time.Time { return now }
	return j
}

func TestScore(t *testing.T) {
	fresh := games.Game{Votes: 10, PublishedAt: now}
	old := games.Game{Votes: 10, PublishedAt: now.Add(-48 * time.Hour)}
	assert.Greater(t, Score(fresh, now), Score(old, now), "older games decay")

	played := games.Game{Plays: 5, PublishedAt: now}
	voted := games.Game{Votes: 1, PublishedAt: now}
	assert.Greater(t, Score(voted, now), Score(played, now), "a vote outweighs a few plays")

	assert.Zero(t, Score(games.Game{Votes: -3, PublishedAt: now}, now))
	assert.Equal(t, Score(fresh, now), Score(games.Game{Votes: 10, PublishedAt: now.Add(time.Hour)}, now),
		"clock skew does not boost")
}

func TestRunOnceScoresAndRebuildsOnce(t *testing.T) {
	repo := &fakeRepo{}
	for i := 0; i < 7; i++ {
		repo.dirty = append(repo.dirty, games.Game{ID: fmt.Sprintf("g%d", i), Votes: int64(i), PublishedAt: now})
	}
	l := &fakeListings{}
	j := newJob(t, repo, l, 5)

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, int32(1), l.calls.Load(), "one rebuild per batch")
	assert.Len(t, repo.scores, 5)
	assert.Equal(t, Score(games.Game{Votes: 4, PublishedAt: now}, now), repo.scores["g4"])

	n, err = j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(2), l.calls.Load())
}

func TestRunOnceStoresScoresWithTheCountsTheyCameFrom(t *testing.T) {
	repo := &fakeRepo{dirty: []games.Game{
		{ID: "a", Votes: 3, Plays: 9, PublishedAt: now},
		{ID: "b", Votes: 1, PublishedAt: now},
	}}
	j := newJob(t, repo, &fakeListings{}, 0)

	_, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, repo.last, 2)
	for _, g := range repo.last {
		switch g.ID {
		case "a":
			assert.Equal(t, int64(3), g.Votes)
			assert.Equal(t, int64(9), g.Plays)
		case "b":
			assert.Equal(t, int64(1), g.Votes)
		}
		assert.Equal(t, Score(g, now), g.Score)
	}
}

func TestRunOnceSkipsRebuildWhenNothingChanged(t *testing.T) {
	l := &fakeListings{}
	j := newJob(t, &fakeRepo{}, l, 0)

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, l.calls.Load())
}

func TestRunOnceDoesNotRebuildWhenScoresFailToStore(t *testing.T) {
	repo := &fakeRepo{dirty: []games.Game{{ID: "g"}}, failSet: errors.New("disk full")}
	l := &fakeListings{}
	j := newJob(t, repo, l, 0)

	_, err := j.RunOnce(context.Background())
	require.Error(t, err)
	assert.Zero(t, l.calls.Load())
}

func TestRunOnceReportsRebuildFailure(t *testing.T) {
	boom := errors.New("redis down")
	repo := &fakeRepo{dirty: []games.Game{{ID: "g"}}}
	j := newJob(t, repo, &fakeListings{err: boom}, 0)

	n, err := j.RunOnce(context.Background())
	assert.Equal(t, 1, n)
	assert.True(t, errors.Is(err, boom))
}

func TestRunStopsWithContext(t *testing.T) {
	repo := &fakeRepo{dirty: []games.Game{{ID: "g"}}}
	l := &fakeListings{}
	logger, _ := test.NewNullLogger()
	j, err := New(repo, l, Options{Interval: 5 * time.Millisecond, Logger: logger})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return l.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, &fakeListings{}, Options{Interval: time.Second})
	assert.Error(t, err)
	_, err = New(&fakeRepo{}, &fakeListings{}, Options{})
	assert.Error(t, err)
}
