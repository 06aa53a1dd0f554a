package db

import (
	"context"
	"time"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
)

const personColumns = `p.id, p.primary_name, p.notes, p.confidence, p.family_name, p.family_side, p.source_document_id, p.created_at`

func scanPerson(row Row) (genealogy.Person, error) {
	var p genealogy.Person
	err := row.Scan(
		&p.ID,
		&p.PrimaryName,
		&p.Notes,
		&p.Confidence,
		&p.FamilyName,
		&p.FamilySide,
		&p.SourceDocumentID,
		&p.CreatedAt,
	)
	return p, err
}

func scanPersonRows(r Rows) (genealogy.Person, error) {
	return scanPerson(r)
}

const insertPerson = `
INSERT INTO people (primary_name, notes, confidence, family_name, family_side, source_document_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`

type InsertPersonParams struct {
	PrimaryName      string
	Notes            *string
	Confidence       genealogy.Confidence
	FamilyName       *string
	FamilySide       *string
	SourceDocumentID *int64
	CreatedAt        time.Time
}

func (q *Queries) InsertPerson(ctx context.Context, arg InsertPersonParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, insertPerson,
		arg.PrimaryName,
		arg.Notes,
		arg.Confidence,
		arg.FamilyName,
		arg.FamilySide,
		arg.SourceDocumentID,
		arg.CreatedAt,
	).Scan(&id)
	return id, err
}

const getPerson = `SELECT ` + personColumns + ` FROM people p WHERE p.id = $1`

func (q *Queries) GetPerson(ctx context.Context, id int64) (genealogy.Person, error) {
	return scanPerson(q.db.QueryRow(ctx, getPerson, id))
}

const listPeople = `SELECT ` + personColumns + ` FROM people p ORDER BY p.id`

func (q *Queries) ListPeople(ctx context.Context) ([]genealogy.Person, error) {
	rows, err := q.db.Query(ctx, listPeople)
	return collect(rows, err, scanPersonRows)
}

const listPeopleBySourceDocument = `SELECT ` + personColumns + ` FROM people p WHERE p.source_document_id = $1 ORDER BY p.id`

func (q *Queries) ListPeopleBySourceDocument(ctx context.Context, documentID int64) ([]genealogy.Person, error) {
	rows, err := q.db.Query(ctx, listPeopleBySourceDocument, documentID)
	return collect(rows, err, scanPersonRows)
}

// Patterns are matched with '\' as the escape character; see LikePattern.
const searchPeopleByPrimaryName = `
SELECT ` + personColumns + `
FROM people p
WHERE LOWER(p.primary_name) LIKE LOWER(CAST($1 AS TEXT)) ESCAPE '\'
ORDER BY p.id`

func (q *Queries) SearchPeopleByPrimaryName(ctx context.Context, pattern string) ([]genealogy.Person, error) {
	rows, err := q.db.Query(ctx, searchPeopleByPrimaryName, pattern)
	return collect(rows, err, scanPersonRows)
}

const searchPeopleByAltName = `
SELECT DISTINCT ` + personColumns + `
FROM people p
JOIN names n ON n.person_id = p.id
WHERE LOWER(n.name) LIKE LOWER(CAST($1 AS TEXT)) ESCAPE '\'
ORDER BY p.id`

func (q *Queries) SearchPeopleByAltName(ctx context.Context, pattern string) ([]genealogy.Person, error) {
	rows, err := q.db.Query(ctx, searchPeopleByAltName, pattern)
	return collect(rows, err, scanPersonRows)
}

const setPersonFamily = `UPDATE people SET family_name = $2, family_side = $3 WHERE id = $1`

func (q *Queries) SetPersonFamily(ctx context.Context, id int64, familyName, familySide *string) (int64, error) {
	return q.db.Exec(ctx, setPersonFamily, id, familyName, familySide)
}

const setPersonSourceDocument = `UPDATE people SET source_document_id = $2 WHERE id = $1`

func (q *Queries) SetPersonSourceDocument(ctx context.Context, id int64, documentID *int64) (int64, error) {
	return q.db.Exec(ctx, setPersonSourceDocument, id, documentID)
}

const deletePerson = `DELETE FROM people WHERE id = $1`

// DeletePerson removes one person row.
func (q *Queries) DeletePerson(ctx context.Context, id int64) (int64, error) {
	return q.db.Exec(ctx, deletePerson, id)
}

const listFamilies = `
SELECT family_name, family_side, COUNT(*)
FROM people
WHERE family_name IS NOT NULL
GROUP BY family_name, family_side
ORDER BY family_name, COALESCE(family_side, '')`

func (q *Queries) ListFamilies(ctx context.Context) ([]genealogy.Family, error) {
	rows, err := q.db.Query(ctx, listFamilies)
	return collect(rows, err, func(r Rows) (genealogy.Family, error) {
		var f genealogy.Family
		err := r.Scan(&f.FamilyName, &f.FamilySide, &f.PersonCount)
		return f, err
	})
}
