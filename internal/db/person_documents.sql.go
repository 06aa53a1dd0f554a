package db

import (
	"context"
	"errors"
	"time"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
)

const personDocumentColumns = `id, person_id, document_id, link_type, notes, created_at`

func scanPersonDocument(row Row) (genealogy.PersonDocument, error) {
	var pd genealogy.PersonDocument
	var linkType string
	err := row.Scan(&pd.ID, &pd.PersonID, &pd.DocumentID, &linkType, &pd.Notes, &pd.CreatedAt)
	pd.LinkType = genealogy.LinkType(linkType)
	return pd, err
}

func scanPersonDocumentRows(r Rows) (genealogy.PersonDocument, error) {
	return scanPersonDocument(r)
}

const insertPersonDocument = `
INSERT INTO person_documents (person_id, document_id, link_type, notes, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (person_id, document_id, link_type) DO NOTHING
RETURNING id`

type InsertPersonDocumentParams struct {
	PersonID   int64
	DocumentID int64
	LinkType   genealogy.LinkType
	Notes      *string
	CreatedAt  time.Time
}

// InsertPersonDocument returns the new id, or false when an identical link
// already exists.
func (q *Queries) InsertPersonDocument(ctx context.Context, arg InsertPersonDocumentParams) (int64, bool, error) {
	var id int64
	err := q.db.QueryRow(ctx, insertPersonDocument,
		arg.PersonID,
		arg.DocumentID,
		string(arg.LinkType),
		arg.Notes,
		arg.CreatedAt,
	).Scan(&id)
	if errors.Is(err, ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

const listPersonDocuments = `SELECT ` + personDocumentColumns + ` FROM person_documents WHERE person_id = $1 ORDER BY id`

func (q *Queries) ListPersonDocuments(ctx context.Context, personID int64) ([]genealogy.PersonDocument, error) {
	rows, err := q.db.Query(ctx, listPersonDocuments, personID)
	return collect(rows, err, scanPersonDocumentRows)
}

const listPersonDocumentsByDocument = `SELECT ` + personDocumentColumns + ` FROM person_documents WHERE document_id = $1 ORDER BY id`

func (q *Queries) ListPersonDocumentsByDocument(ctx context.Context, documentID int64) ([]genealogy.PersonDocument, error) {
	rows, err := q.db.Query(ctx, listPersonDocumentsByDocument, documentID)
	return collect(rows, err, scanPersonDocumentRows)
}

const reassignPersonDocument = `UPDATE person_documents SET person_id = $2 WHERE id = $1`

func (q *Queries) ReassignPersonDocument(ctx context.Context, id, personID int64) (int64, error) {
	return q.db.Exec(ctx, reassignPersonDocument, id, personID)
}

const deletePersonDocument = `DELETE FROM person_documents WHERE id = $1`

func (q *Queries) DeletePersonDocument(ctx context.Context, id int64) (int64, error) {
	return q.db.Exec(ctx, deletePersonDocument, id)
}

const deletePersonDocumentsForPerson = `DELETE FROM person_documents WHERE person_id = $1`

func (q *Queries) DeletePersonDocumentsForPerson(ctx context.Context, personID int64) (int64, error) {
	return q.db.Exec(ctx, deletePersonDocumentsForPerson, personID)
}

const deletePersonDocumentsByDocument = `DELETE FROM person_documents WHERE document_id = $1`

func (q *Queries) DeletePersonDocumentsByDocument(ctx context.Context, documentID int64) (int64, error) {
	return q.db.Exec(ctx, deletePersonDocumentsByDocument, documentID)
}
