// Package comments owns the per-game comment threads.
//
// Every mutation commits to the database first and then rebuilds the
// thread's cached window before returning, so the author sees the change
// on the very next read of the thread.
package comments

import (
	"context"
	"database/sql"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/pagecache"
	"github.com/unkn0wn-root/pagecache/lists"
)

// MaxBodyLen bounds a comment body in runes.
const MaxBodyLen = 2000

// ErrInvalid marks a comment the service refuses to store.
var ErrInvalid = errors.New("comments: invalid input")

type Comment struct {
	ID        string    `json:"id" cbor:"1,keyasint" msgpack:"id"`
	GameID    string    `json:"game_id" cbor:"2,keyasint" msgpack:"game_id"`
	Author    string    `json:"author" cbor:"3,keyasint" msgpack:"author"`
	Body      string    `json:"body" cbor:"4,keyasint" msgpack:"body"`
	CreatedAt time.Time `json:"created_at" cbor:"5,keyasint" msgpack:"created_at"`
	Edited    bool      `json:"edited,omitempty" cbor:"6,keyasint,omitempty" msgpack:"edited,omitempty"`
	Seq       int64     `json:"-" cbor:"7,keyasint" msgpack:"seq"`
}

// Thread is the cached read side a Service invalidates.
type Thread interface {
	GetPage(ctx context.Context, gameID, token string) (pagecache.Page[Comment], error)
	Invalidate(ctx context.Context, gameID string) error
}

var _ Thread = (*lists.PerParent[Comment])(nil)

type Service struct {
	db     *sql.DB
	thread Thread
	log    *logrus.Logger
	now    func() time.Time
}

func NewService(db *sql.DB, thread Thread, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{db: db, thread: thread, log: log, now: time.Now}
}

// Thread returns one page of a game's visible comments, oldest first.
func (s *Service) Thread(ctx context.Context, gameID, token string) (pagecache.Page[Comment], error) {
	return s.thread.GetPage(ctx, gameID, token)
}

// Append adds a comment at the end of a game's thread.
func (s *Service) Append(ctx context.Context, gameID, author, body string) (Comment, error) {
	author = strings.TrimSpace(author)
	if author == "" {
		return Comment{}, errors.Wrap(ErrInvalid, "author is required")
	}
	body, err := checkBody(body)
	if err != nil {
		return Comment{}, err
	}

	c := Comment{
		ID:        uuid.NewString(),
		GameID:    gameID,
		Author:    author,
		Body:      body,
		CreatedAt: s.now().UTC(),
	}
	// The game check and the insert are one statement so a missing game
	// never leaves a row behind.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO comments (id, game_id, author, body, created_at)
		 SELECT ?, id, ?, ?, ? FROM games WHERE id = ?`,
		c.ID, c.Author, c.Body, c.CreatedAt.UnixNano(), gameID)
	if err != nil {
		return Comment{}, errors.Wrap(err, "insert comment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Comment{}, errors.Wrapf(pagecache.ErrNotFound, "game %s", gameID)
	}
	if c.Seq, err = res.LastInsertId(); err != nil {
		return Comment{}, errors.Wrap(err, "comment seq")
	}
	return c, s.invalidate(ctx, gameID, "append", c.ID)
}

// Edit replaces the body of a visible comment.
func (s *Service) Edit(ctx context.Context, commentID, body string) (Comment, error) {
	body, err := checkBody(body)
	if err != nil {
		return Comment{}, err
	}
	c, err := s.get(ctx, commentID)
	if err != nil {
		return Comment{}, err
	}
	if err := s.update(ctx, commentID,
		`UPDATE comments SET body = ?, edited_at = ? WHERE id = ? AND deleted = 0 AND flagged = 0`,
		body, s.now().UnixNano(), commentID); err != nil {
		return Comment{}, err
	}
	c.Body, c.Edited = body, true
	return c, s.invalidate(ctx, c.GameID, "edit", commentID)
}

// Delete hides a comment from its thread.
func (s *Service) Delete(ctx context.Context, commentID string) error {
	return s.hide(ctx, commentID, "delete", `UPDATE comments SET deleted = 1 WHERE id = ? AND deleted = 0 AND flagged = 0`)
}

// Flag hides a comment pending moderation.
func (s *Service) Flag(ctx context.Context, commentID string) error {
	return s.hide(ctx, commentID, "flag", `UPDATE comments SET flagged = 1 WHERE id = ? AND deleted = 0 AND flagged = 0`)
}

func (s *Service) hide(ctx context.Context, commentID, action, stmt string) error {
	c, err := s.get(ctx, commentID)
	if err != nil {
		return err
	}
	if err := s.update(ctx, commentID, stmt, commentID); err != nil {
		return err
	}
	return s.invalidate(ctx, c.GameID, action, commentID)
}

func (s *Service) update(ctx context.Context, commentID, stmt string, args ...any) error {
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return errors.Wrapf(err, "update comment %s", commentID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.Wrapf(pagecache.ErrNotFound, "comment %s", commentID)
	}
	return nil
}

// get loads a visible comment.
func (s *Service) get(ctx context.Context, commentID string) (Comment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+columnList+` FROM comments WHERE id = ? AND deleted = 0 AND flagged = 0`, commentID)
	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Comment{}, errors.Wrapf(pagecache.ErrNotFound, "comment %s", commentID)
	}
	if err != nil {
		return Comment{}, errors.Wrapf(err, "get comment %s", commentID)
	}
	return c, nil
}

// invalidate runs after the mutation committed. A failure is reported to
// the caller even though the row is already written.
func (s *Service) invalidate(ctx context.Context, gameID, action, commentID string) error {
	if err := s.thread.Invalidate(ctx, gameID); err != nil {
		s.log.WithFields(logrus.Fields{
			"action":     "thread_invalidate",
			"mutation":   action,
			"game_id":    gameID,
			"comment_id": commentID,
		}).WithError(err).Error("comment committed but thread cache is stale")
		return errors.Wrapf(err, "%s comment %s", action, commentID)
	}
	return nil
}

func checkBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", errors.Wrap(ErrInvalid, "body is required")
	}
	if utf8.RuneCountInString(body) > MaxBodyLen {
		return "", errors.Wrapf(ErrInvalid, "body longer than %d characters", MaxBodyLen)
	}
	return body, nil
}
