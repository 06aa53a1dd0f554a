package db

import (
	"context"
	"time"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
)

const insertMergeRecord = `
INSERT INTO merge_log (
    public_id, keep_id, merged_id, merged_name, confidence, reasons, merged_by,
    names_copied, events_moved, relationships_moved, document_links_moved, document_links_dropped,
    created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING id`

type InsertMergeRecordParams struct {
	PublicID             string
	KeepID               int64
	MergedID             int64
	MergedName           string
	Confidence           genealogy.Confidence
	Reasons              string
	MergedBy             string
	NamesCopied          int
	EventsMoved          int
	RelationshipsMoved   int
	DocumentLinksMoved   int
	DocumentLinksDropped int
	CreatedAt            time.Time
}

func (q *Queries) InsertMergeRecord(ctx context.Context, arg InsertMergeRecordParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, insertMergeRecord,
		arg.PublicID,
		arg.KeepID,
		arg.MergedID,
		arg.MergedName,
		arg.Confidence,
		arg.Reasons,
		arg.MergedBy,
		arg.NamesCopied,
		arg.EventsMoved,
		arg.RelationshipsMoved,
		arg.DocumentLinksMoved,
		arg.DocumentLinksDropped,
		arg.CreatedAt,
	).Scan(&id)
	return id, err
}

const listMergeRecords = `
SELECT id, public_id, keep_id, merged_id, merged_name, confidence, reasons, merged_by,
       names_copied, events_moved, relationships_moved, document_links_moved, document_links_dropped,
       created_at
FROM merge_log
ORDER BY id DESC
LIMIT $1`

func (q *Queries) ListMergeRecords(ctx context.Context, limit int) ([]genealogy.MergeRecord, error) {
	rows, err := q.db.Query(ctx, listMergeRecords, limit)
	return collect(rows, err, func(r Rows) (genealogy.MergeRecord, error) {
		var m genealogy.MergeRecord
		err := r.Scan(
			&m.ID,
			&m.PublicID,
			&m.KeepID,
			&m.MergedID,
			&m.MergedName,
			&m.Confidence,
			&m.Reasons,
			&m.MergedBy,
			&m.NamesCopied,
			&m.EventsMoved,
			&m.RelationshipsMoved,
			&m.DocumentLinksMoved,
			&m.DocumentLinksDropped,
			&m.CreatedAt,
		)
		return m, err
	})
}
