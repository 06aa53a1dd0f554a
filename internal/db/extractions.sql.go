package db

import (
	"context"
	"errors"
	"time"
)

const claimDocumentExtraction = `
INSERT INTO document_extractions (document_id, result_hash, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (document_id, result_hash) DO NOTHING
RETURNING id`

// ClaimDocumentExtraction records that the result with hash was stored for a
// document. It returns false when the same result was stored before.
func (q *Queries) ClaimDocumentExtraction(ctx context.Context, documentID int64, hash string, at time.Time) (bool, error) {
	var id int64
	err := q.db.QueryRow(ctx, claimDocumentExtraction, documentID, hash, at).Scan(&id)
	if errors.Is(err, ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

const countDocumentExtractions = `SELECT COUNT(*) FROM document_extractions WHERE document_id = $1`

// CountDocumentExtractions counts distinct results stored for a document.
func (q *Queries) CountDocumentExtractions(ctx context.Context, documentID int64) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countDocumentExtractions, documentID).Scan(&n)
	return n, err
}
