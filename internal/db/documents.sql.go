package db

import (
	"context"
	"time"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
)

const documentColumns = `id, source, page, ocr_text, document_type, created_at`

func scanDocument(row Row) (genealogy.Document, error) {
	var d genealogy.Document
	err := row.Scan(&d.ID, &d.Source, &d.Page, &d.OCRText, &d.DocumentType, &d.CreatedAt)
	return d, err
}

const insertDocument = `
INSERT INTO documents (source, page, ocr_text, document_type, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`

type InsertDocumentParams struct {
	Source       string
	Page         int
	OCRText      string
	DocumentType *string
	CreatedAt    time.Time
}

func (q *Queries) InsertDocument(ctx context.Context, arg InsertDocumentParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, insertDocument, arg.Source, arg.Page, arg.OCRText, arg.DocumentType, arg.CreatedAt).Scan(&id)
	return id, err
}

const getDocument = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

func (q *Queries) GetDocument(ctx context.Context, id int64) (genealogy.Document, error) {
	return scanDocument(q.db.QueryRow(ctx, getDocument, id))
}

const getDocumentBySourcePage = `SELECT ` + documentColumns + ` FROM documents WHERE source = $1 AND page = $2`

func (q *Queries) GetDocumentBySourcePage(ctx context.Context, source string, page int) (genealogy.Document, error) {
	return scanDocument(q.db.QueryRow(ctx, getDocumentBySourcePage, source, page))
}

const listDocuments = `SELECT ` + documentColumns + ` FROM documents ORDER BY source, page, id`

func (q *Queries) ListDocuments(ctx context.Context) ([]genealogy.Document, error) {
	rows, err := q.db.Query(ctx, listDocuments)
	return collect(rows, err, func(r Rows) (genealogy.Document, error) { return scanDocument(r) })
}

const listDocumentsBySource = `SELECT ` + documentColumns + ` FROM documents WHERE source = $1 ORDER BY page, id`

func (q *Queries) ListDocumentsBySource(ctx context.Context, source string) ([]genealogy.Document, error) {
	rows, err := q.db.Query(ctx, listDocumentsBySource, source)
	return collect(rows, err, func(r Rows) (genealogy.Document, error) { return scanDocument(r) })
}

const setDocumentType = `UPDATE documents SET document_type = $2 WHERE id = $1`

func (q *Queries) SetDocumentType(ctx context.Context, id int64, documentType *string) (int64, error) {
	return q.db.Exec(ctx, setDocumentType, id, documentType)
}

const deleteDocument = `DELETE FROM documents WHERE id = $1`

func (q *Queries) DeleteDocument(ctx context.Context, id int64) (int64, error) {
	return q.db.Exec(ctx, deleteDocument, id)
}
