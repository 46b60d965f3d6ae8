// Package games stores published games and exposes their listings as a
// keyset-paginated source.
//
// Votes and plays only mark a game dirty. Listing order changes when the
// ranking job rewrites scores, never on the write path.
package games

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/unkn0wn-root/pagecache"
)

// ErrInvalid marks input the repository refuses to store.
var ErrInvalid = errors.New("games: invalid input")

type Game struct {
	ID          string    `json:"id" msgpack:"id"`
	Title       string    `json:"title" msgpack:"title"`
	Author      string    `json:"author" msgpack:"author"`
	PublishedAt time.Time `json:"published_at" msgpack:"published_at"`
	Votes       int64     `json:"votes" msgpack:"votes"`
	Plays       int64     `json:"plays" msgpack:"plays"`
	Score       int64     `json:"score" msgpack:"score"`
}

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Publish stores a new game. It starts dirty so the next ranking pass
// scores it.
func (r *Repository) Publish(ctx context.Context, title, author string) (Game, error) {
	title, author = strings.TrimSpace(title), strings.TrimSpace(author)
	if title == "" || author == "" {
		return Game{}, errors.Wrap(ErrInvalid, "title and author are required")
	}
	g := Game{
		ID:          uuid.NewString(),
		Title:       title,
		Author:      author,
		PublishedAt: r.now().UTC(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO games (id, title, author, published_at, dirty) VALUES (?, ?, ?, ?, 1)`,
		g.ID, g.Title, g.Author, g.PublishedAt.UnixNano())
	if err != nil {
		return Game{}, errors.Wrap(err, "insert game")
	}
	return g, nil
}

// Vote adds delta (+1 or -1) to the game's votes.
func (r *Repository) Vote(ctx context.Context, id string, delta int) error {
	if delta != 1 && delta != -1 {
		return errors.Wrapf(ErrInvalid, "vote delta %d", delta)
	}
	return r.bump(ctx, id, `UPDATE games SET votes = votes + ?, dirty = 1 WHERE id = ?`, delta)
}

func (r *Repository) Play(ctx context.Context, id string) error {
	return r.bump(ctx, id, `UPDATE games SET plays = plays + ?, dirty = 1 WHERE id = ?`, 1)
}

func (r *Repository) bump(ctx context.Context, id, stmt string, delta int) error {
	res, err := r.db.ExecContext(ctx, stmt, delta, id)
	if err != nil {
		return errors.Wrapf(err, "update game %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.Wrapf(pagecache.ErrNotFound, "game %s", id)
	}
	return nil
}

// Exists implements lists.OwnerChecker for comment threads.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM games WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "lookup game %s", id)
	}
	return true, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Game, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columnList+` FROM games WHERE id = ?`, id)
	g, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Game{}, errors.Wrapf(pagecache.ErrNotFound, "game %s", id)
	}
	if err != nil {
		return Game{}, errors.Wrapf(err, "get game %s", id)
	}
	return g, nil
}

// Dirty returns up to limit games whose votes or plays changed since they
// were last scored.
func (r *Repository) Dirty(ctx context.Context, limit int) ([]Game, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columnList+` FROM games WHERE dirty = 1 ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query dirty games")
	}
	defer rows.Close()

	var out []Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan dirty game")
		}
		out = append(out, g)
	}
	return out, errors.Wrap(rows.Err(), "iterate dirty games")
}

// SetScores stores g.Score for each game in one transaction. The dirty flag
// is cleared only where votes and plays still equal the values in g, so a
// vote that lands after Dirty keeps the game queued for the next pass.
func (r *Repository) SetScores(ctx context.Context, scored []Game) error {
	if len(scored) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin score update")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE games
		SET score = ?, dirty = CASE WHEN votes = ? AND plays = ? THEN 0 ELSE dirty END
		WHERE id = ?`)
	if err != nil {
		return errors.Wrap(err, "prepare score update")
	}
	defer stmt.Close()
	for _, g := range scored {
		if _, err := stmt.ExecContext(ctx, g.Score, g.Votes, g.Plays, g.ID); err != nil {
			return errors.Wrapf(err, "score game %s", g.ID)
		}
	}
	return errors.Wrap(tx.Commit(), "commit score update")
}

const columnList = "id, title, author, published_at, votes, plays, score"

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(s scanner) (Game, error) {
	var (
		g  Game
		ts int64
	)
	if err := s.Scan(&g.ID, &g.Title, &g.Author, &ts, &g.Votes, &g.Plays, &g.Score); err != nil {
		return Game{}, err
	}
	g.PublishedAt = time.Unix(0, ts).UTC()
	return g, nil
}
