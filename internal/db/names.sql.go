package db

import (
	"context"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
)

func scanName(row Row) (genealogy.Name, error) {
	var n genealogy.Name
	err := row.Scan(&n.ID, &n.PersonID, &n.Name, &n.NameType, &n.Confidence)
	return n, err
}

const insertName = `
INSERT INTO names (person_id, name, name_type, confidence)
VALUES ($1, $2, $3, $4)
RETURNING id`

type InsertNameParams struct {
	PersonID   int64
	Name       string
	NameType   *string
	Confidence genealogy.Confidence
}

func (q *Queries) InsertName(ctx context.Context, arg InsertNameParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, insertName, arg.PersonID, arg.Name, arg.NameType, arg.Confidence).Scan(&id)
	return id, err
}

const listNamesForPerson = `
SELECT id, person_id, name, name_type, confidence
FROM names
WHERE person_id = $1
ORDER BY id`

func (q *Queries) ListNamesForPerson(ctx context.Context, personID int64) ([]genealogy.Name, error) {
	rows, err := q.db.Query(ctx, listNamesForPerson, personID)
	return collect(rows, err, func(r Rows) (genealogy.Name, error) { return scanName(r) })
}

const listAllNames = `SELECT id, person_id, name, name_type, confidence FROM names ORDER BY person_id, id`

func (q *Queries) ListAllNames(ctx context.Context) ([]genealogy.Name, error) {
	rows, err := q.db.Query(ctx, listAllNames)
	return collect(rows, err, func(r Rows) (genealogy.Name, error) { return scanName(r) })
}

const deleteNamesForPerson = `DELETE FROM names WHERE person_id = $1`

func (q *Queries) DeleteNamesForPerson(ctx context.Context, personID int64) (int64, error) {
	return q.db.Exec(ctx, deleteNamesForPerson, personID)
}
