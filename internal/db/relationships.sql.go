package db

import (
	"context"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
)

const relationshipColumns = `id, source_person_id, target_person_id, relationship_type, confidence, notes, source_document_id`

func scanRelationship(row Row) (genealogy.Relationship, error) {
	var r genealogy.Relationship
	err := row.Scan(
		&r.ID,
		&r.SourcePersonID,
		&r.TargetPersonID,
		&r.RelationshipType,
		&r.Confidence,
		&r.Notes,
		&r.SourceDocumentID,
	)
	return r, err
}

func scanRelationshipRows(r Rows) (genealogy.Relationship, error) {
	return scanRelationship(r)
}

const insertRelationship = `
INSERT INTO relationships (source_person_id, target_person_id, relationship_type, confidence, notes, source_document_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

type InsertRelationshipParams struct {
	SourcePersonID   int64
	TargetPersonID   int64
	RelationshipType string
	Confidence       genealogy.Confidence
	Notes            *string
	SourceDocumentID *int64
}

func (q *Queries) InsertRelationship(ctx context.Context, arg InsertRelationshipParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, insertRelationship,
		arg.SourcePersonID,
		arg.TargetPersonID,
		arg.RelationshipType,
		arg.Confidence,
		arg.Notes,
		arg.SourceDocumentID,
	).Scan(&id)
	return id, err
}

const listRelationshipsForPerson = `
SELECT ` + relationshipColumns + `
FROM relationships
WHERE source_person_id = $1 OR target_person_id = $1
ORDER BY id`

func (q *Queries) ListRelationshipsForPerson(ctx context.Context, personID int64) ([]genealogy.Relationship, error) {
	rows, err := q.db.Query(ctx, listRelationshipsForPerson, personID)
	return collect(rows, err, scanRelationshipRows)
}

const listAllRelationships = `SELECT ` + relationshipColumns + ` FROM relationships ORDER BY id`

func (q *Queries) ListAllRelationships(ctx context.Context) ([]genealogy.Relationship, error) {
	rows, err := q.db.Query(ctx, listAllRelationships)
	return collect(rows, err, scanRelationshipRows)
}

const reassignRelationshipSource = `UPDATE relationships SET source_person_id = $1 WHERE source_person_id = $2`

func (q *Queries) ReassignRelationshipSource(ctx context.Context, keepID, mergeID int64) (int64, error) {
	return q.db.Exec(ctx, reassignRelationshipSource, keepID, mergeID)
}

const reassignRelationshipTarget = `UPDATE relationships SET target_person_id = $1 WHERE target_person_id = $2`

func (q *Queries) ReassignRelationshipTarget(ctx context.Context, keepID, mergeID int64) (int64, error) {
	return q.db.Exec(ctx, reassignRelationshipTarget, keepID, mergeID)
}

const listSelfRelationships = `
SELECT ` + relationshipColumns + `
FROM relationships
WHERE source_person_id = $1 AND target_person_id = $1
ORDER BY id`

// ListSelfRelationships finds relationships whose source and target are
// both personID.
func (q *Queries) ListSelfRelationships(ctx context.Context, personID int64) ([]genealogy.Relationship, error) {
	rows, err := q.db.Query(ctx, listSelfRelationships, personID)
	return collect(rows, err, scanRelationshipRows)
}

const deleteRelationshipsBySourceDocument = `DELETE FROM relationships WHERE source_document_id = $1`

func (q *Queries) DeleteRelationshipsBySourceDocument(ctx context.Context, documentID int64) (int64, error) {
	return q.db.Exec(ctx, deleteRelationshipsBySourceDocument, documentID)
}

const deleteRelationshipsForPerson = `DELETE FROM relationships WHERE source_person_id = $1 OR target_person_id = $1`

func (q *Queries) DeleteRelationshipsForPerson(ctx context.Context, personID int64) (int64, error) {
	return q.db.Exec(ctx, deleteRelationshipsForPerson, personID)
}
