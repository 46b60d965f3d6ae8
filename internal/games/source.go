package games

import (
	"database/sql"
	"fmt"

	"github.com/unkn0wn-root/pagecache/source"
	"github.com/unkn0wn-root/pagecache/source/sqlsource"
)

// Listing orderings. Recent is the default.
const (
	OrderRecent = "recent"
	OrderTop    = "top"
)

// Orderings maps each listing to the query its window is built from.
func Orderings() map[string]source.Query {
	return map[string]source.Query{
		OrderRecent: {Ordering: OrderRecent},
		OrderTop:    {Ordering: OrderTop},
	}
}

// NewSource pages over the games table. The id column breaks ties.
func NewSource(db *sql.DB) (*sqlsource.Source[Game], error) {
	recent := []sqlsource.Column{{Name: "published_at", Desc: true}, {Name: "id"}}
	return sqlsource.New(sqlsource.Config[Game]{
		DB:      db,
		Table:   "games",
		Columns: []string{"id", "title", "author", "published_at", "votes", "plays", "score"},
		Orderings: map[string][]sqlsource.Column{
			"":          recent,
			OrderRecent: recent,
			OrderTop:    {{Name: "score", Desc: true}, {Name: "id"}},
		},
		Scan: func(rows *sql.Rows) (Game, error) { return scanGame(rows) },
		Key: func(g Game, column string) any {
			switch column {
			case "published_at":
				return g.PublishedAt.UnixNano()
			case "score":
				return g.Score
			case "id":
				return g.ID
			}
			panic(fmt.Sprintf("games: no sort key %q", column))
		},
	})
}
