package comments

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/unkn0wn-root/pagecache/source"
	"github.com/unkn0wn-root/pagecache/source/sqlsource"
)

const columnList = "seq, id, game_id, author, body, created_at, edited_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanComment(s scanner) (Comment, error) {
	var (
		c              Comment
		created, edits int64
	)
	if err := s.Scan(&c.Seq, &c.ID, &c.GameID, &c.Author, &c.Body, &created, &edits); err != nil {
		return Comment{}, err
	}
	c.CreatedAt = time.Unix(0, created).UTC()
	c.Edited = edits != 0
	return c, nil
}

// NewSource pages over the visible comments of one game in posting order.
func NewSource(db *sql.DB) (*sqlsource.Source[Comment], error) {
	return sqlsource.New(sqlsource.Config[Comment]{
		DB:         db,
		Table:      "comments",
		Columns:    []string{"seq", "id", "game_id", "author", "body", "created_at", "edited_at"},
		Where:      "deleted = 0 AND flagged = 0",
		Orderings:  map[string][]sqlsource.Column{"": {{Name: "seq"}}},
		Filterable: []string{"game_id"},
		Scan:       func(rows *sql.Rows) (Comment, error) { return scanComment(rows) },
		Key: func(c Comment, column string) any {
			if column == "seq" {
				return c.Seq
			}
			panic(fmt.Sprintf("comments: no sort key %q", column))
		},
	})
}

// ThreadQuery selects one game's thread.
func ThreadQuery(gameID string) source.Query {
	return source.Query{Filter: map[string]any{"game_id": gameID}}
}
