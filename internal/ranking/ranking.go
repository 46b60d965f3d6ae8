// Package ranking recomputes game scores in batches and rebuilds the
// listing windows once per batch.
package ranking

import (
	"context"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/pagecache/internal/games"
)

// Repository is the slice of games.Repository the job needs.
type Repository interface {
	Dirty(ctx context.Context, limit int) ([]games.Game, error)
	SetScores(ctx context.Context, scored []games.Game) error
}

// Listings is rebuilt once after the scores of a batch are stored.
type Listings interface {
	InvalidateAll(ctx context.Context) error
}

type Options struct {
	Interval  time.Duration
	Workers   int
	BatchSize int // 0 => 500
	Logger    *logrus.Logger
}

type Job struct {
	repo     Repository
	listings Listings
	interval time.Duration
	workers  int
	batch    int
	log      *logrus.Logger
	now      func() time.Time
}

func New(repo Repository, listings Listings, opts Options) (*Job, error) {
	if repo == nil || listings == nil {
		return nil, errors.New("ranking: repository and listings are required")
	}
	if opts.Interval <= 0 {
		return nil, errors.Newf("ranking: interval must be positive, got %s", opts.Interval)
	}
	j := &Job{
		repo:     repo,
		listings: listings,
		interval: opts.Interval,
		workers:  opts.Workers,
		batch:    opts.BatchSize,
		log:      opts.Logger,
		now:      time.Now,
	}
	if j.workers <= 0 {
		j.workers = 1
	}
	if j.batch <= 0 {
		j.batch = 500
	}
	if j.log == nil {
		j.log = logrus.StandardLogger()
	}
	return j, nil
}

// Score ranks a game by weighted engagement decayed by age.
func Score(g games.Game, now time.Time) int64 {
	engagement := float64(10*g.Votes + g.Plays)
	if engagement < 0 {
		engagement = 0
	}
	hours := now.Sub(g.PublishedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	return int64(engagement * 1e6 / math.Pow(hours+2, 1.5))
}

// RunOnce scores one batch of dirty games and, if any changed, rebuilds
// every listing. It returns the number of games scored.
func (j *Job) RunOnce(ctx context.Context) (int, error) {
	dirty, err := j.repo.Dirty(ctx, j.batch)
	if err != nil {
		return 0, errors.Wrap(err, "load dirty games")
	}
	if len(dirty) == 0 {
		return 0, nil
	}

	// each worker owns one index; the games keep the votes and plays they
	// were scored from
	now := j.now()
	scores := dirty
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.workers)
	for i := range scores {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scores[i].Score = Score(scores[i], now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, errors.Wrap(err, "score batch")
	}

	if err := j.repo.SetScores(ctx, scores); err != nil {
		return 0, errors.Wrap(err, "store scores")
	}
	if err := j.listings.InvalidateAll(ctx); err != nil {
		return len(scores), errors.Wrap(err, "rebuild listings")
	}
	j.log.WithFields(logrus.Fields{
		"action": "rerank",
		"scored": len(scores),
	}).Info("listings rebuilt")
	return len(scores), nil
}

// Run calls RunOnce every interval until ctx is done. Failed batches are
// logged and retried on the next tick.
func (j *Job) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
				j.log.WithField("action", "rerank").WithError(err).Warn("ranking batch failed")
			}
		case <-ctx.Done():
			return
		}
	}
}
