package comments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/pagecache"
	"github.com/unkn0wn-root/pagecache/codec"
	"github.com/unkn0wn-root/pagecache/internal/db"
	"github.com/unkn0wn-root/pagecache/internal/games"
	"github.com/unkn0wn-root/pagecache/lists"
	"github.com/unkn0wn-root/pagecache/provider/ristretto"
	"github.com/unkn0wn-root/pagecache/store"
)

type fixture struct {
	conn  *sql.DB
	games *games.Repository
	svc   *Service
	game  games.Game
	logs  *test.Hook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	prov, err := ristretto.New(ristretto.Config{MaxBytes: 1 << 20, Synchronous: true})
	require.NoError(t, err)
	st, err := store.New(store.Options{Provider: prov})
	require.NoError(t, err)

	src, err := NewSource(conn)
	require.NoError(t, err)
	pager, err := pagecache.New(pagecache.Options[Comment]{
		Namespace:  "comments",
		Store:      st,
		Source:     src,
		Codec:      codec.MustCBOR[pagecache.Page[Comment]](codec.CBOROptions{Deterministic: true}),
		WindowSize: 2,
		PageSize:   3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pager.Close(context.Background()) })

	repo := games.NewRepository(conn)
	thread, err := lists.NewPerParent[Comment](pager, repo, ThreadQuery, nil)
	require.NoError(t, err)

	logger, hook := test.NewNullLogger()
	g, err := repo.Publish(ctx, "Orbit", "dev")
	require.NoError(t, err)
	return &fixture{conn: conn, games: repo, svc: NewService(conn, thread, logger), game: g, logs: hook}
}

func (f *fixture) appendN(t *testing.T, n int) []Comment {
	t.Helper()
	out := make([]Comment, 0, n)
	for i := 0; i < n; i++ {
		c, err := f.svc.Append(context.Background(), f.game.ID, "u", fmt.Sprintf("c%d", i))
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

// readAll follows next tokens through the window and into the live tail.
func (f *fixture) readAll(t *testing.T) []string {
	t.Helper()
	var (
		bodies []string
		token  string
	)
	for i := 0; i < 50; i++ {
		pg, err := f.svc.Thread(context.Background(), f.game.ID, token)
		require.NoError(t, err)
		for _, c := range pg.Items {
			bodies = append(bodies, c.Body)
		}
		if pg.Last() {
			return bodies
		}
		token = pg.Next
	}
	t.Fatal("thread did not terminate")
	return nil
}

func TestAppendIsVisibleImmediately(t *testing.T) {
	f := newFixture(t)
	f.appendN(t, 4)

	pg, err := f.svc.Thread(context.Background(), f.game.ID, "")
	require.NoError(t, err)
	require.Len(t, pg.Items, 3)
	assert.Equal(t, "page1", pg.Next)

	f.appendN(t, 1)
	assert.Equal(t, []string{"c0", "c1", "c2", "c3", "c4"}, f.readAll(t))
}

func TestThreadCrossesIntoLiveTail(t *testing.T) {
	f := newFixture(t)
	f.appendN(t, 8)

	got := f.readAll(t)
	require.Len(t, got, 8)
	for i, body := range got {
		assert.Equal(t, fmt.Sprintf("c%d", i), body)
	}

	// page1 is the last window slot; its next token is a source cursor
	pg, err := f.svc.Thread(context.Background(), f.game.ID, "page1")
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(pg.Next, "page"))
}

func TestEditDeleteFlag(t *testing.T) {
	f := newFixture(t)
	cs := f.appendN(t, 3)
	ctx := context.Background()

	edited, err := f.svc.Edit(ctx, cs[1].ID, "  fixed  ")
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	assert.Equal(t, "fixed", edited.Body)
	assert.Equal(t, []string{"c0", "fixed", "c2"}, f.readAll(t))

	require.NoError(t, f.svc.Delete(ctx, cs[0].ID))
	assert.Equal(t, []string{"fixed", "c2"}, f.readAll(t))

	require.NoError(t, f.svc.Flag(ctx, cs[2].ID))
	assert.Equal(t, []string{"fixed"}, f.readAll(t))

	// hidden comments are gone for every mutation
	assert.True(t, errors.Is(f.svc.Delete(ctx, cs[0].ID), pagecache.ErrNotFound))
	assert.True(t, errors.Is(f.svc.Flag(ctx, cs[0].ID), pagecache.ErrNotFound))
	_, err = f.svc.Edit(ctx, cs[2].ID, "again")
	assert.True(t, errors.Is(err, pagecache.ErrNotFound))
}

func TestAppendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Append(ctx, f.game.ID, "u", "   ")
	assert.True(t, errors.Is(err, ErrInvalid))
	_, err = f.svc.Append(ctx, f.game.ID, "", "hi")
	assert.True(t, errors.Is(err, ErrInvalid))
	_, err = f.svc.Append(ctx, f.game.ID, "u", strings.Repeat("x", MaxBodyLen+1))
	assert.True(t, errors.Is(err, ErrInvalid))

	_, err = f.svc.Append(ctx, "missing", "u", "hi")
	assert.True(t, errors.Is(err, pagecache.ErrNotFound))
	var n int
	require.NoError(t, f.conn.QueryRow(`SELECT count(*) FROM comments`).Scan(&n))
	assert.Zero(t, n)
}

func TestThreadOfMissingGame(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Thread(context.Background(), "missing", "")
	assert.True(t, errors.Is(err, pagecache.ErrNotFound))

	_, err = f.svc.Thread(context.Background(), f.game.ID, "page9")
	assert.True(t, errors.Is(err, pagecache.ErrInvalidPageToken))

	_, err = f.svc.Thread(context.Background(), f.game.ID, "!!bad")
	assert.True(t, errors.Is(err, pagecache.ErrInvalidPageToken))
}

type brokenThread struct{ Thread }

func (brokenThread) Invalidate(context.Context, string) error {
	return &pagecache.InvalidateError{Prefix: "g", RecacheErr: errors.New("src"), DropErr: errors.New("store")}
}

func TestInvalidateFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.svc.thread = brokenThread{f.svc.thread}

	_, err := f.svc.Append(context.Background(), f.game.ID, "u", "hi")
	var ie *pagecache.InvalidateError
	require.True(t, errors.As(err, &ie), "got %v", err)

	entry := f.logs.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "append", entry.Data["mutation"])
}
