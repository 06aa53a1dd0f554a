package db

import (
	"context"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
)

const getStats = `
SELECT
    (SELECT COUNT(*) FROM documents),
    (SELECT COUNT(*) FROM people),
    (SELECT COUNT(*) FROM names),
    (SELECT COUNT(*) FROM events),
    (SELECT COUNT(*) FROM relationships),
    (SELECT COUNT(*) FROM person_documents),
    (SELECT COUNT(*) FROM merge_log)`

func (q *Queries) GetStats(ctx context.Context) (genealogy.Stats, error) {
	var s genealogy.Stats
	err := q.db.QueryRow(ctx, getStats).Scan(
		&s.Documents,
		&s.People,
		&s.Names,
		&s.Events,
		&s.Relationships,
		&s.DocumentLinks,
		&s.Merges,
	)
	return s, err
}
