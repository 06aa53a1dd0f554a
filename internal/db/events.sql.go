package db

import (
	"context"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
)

const eventColumns = `id, person_id, event_type, date, place, description, confidence, source_document_id`

func scanEvent(row Row) (genealogy.Event, error) {
	var e genealogy.Event
	err := row.Scan(
		&e.ID,
		&e.PersonID,
		&e.EventType,
		&e.Date,
		&e.Place,
		&e.Description,
		&e.Confidence,
		&e.SourceDocumentID,
	)
	return e, err
}

func scanEventRows(r Rows) (genealogy.Event, error) {
	return scanEvent(r)
}

const insertEvent = `
INSERT INTO events (person_id, event_type, date, place, description, confidence, source_document_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`

type InsertEventParams struct {
	PersonID         int64
	EventType        string
	Date             *string
	Place            *string
	Description      *string
	Confidence       genealogy.Confidence
	SourceDocumentID *int64
}

func (q *Queries) InsertEvent(ctx context.Context, arg InsertEventParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, insertEvent,
		arg.PersonID,
		arg.EventType,
		arg.Date,
		arg.Place,
		arg.Description,
		arg.Confidence,
		arg.SourceDocumentID,
	).Scan(&id)
	return id, err
}

const listEventsForPerson = `SELECT ` + eventColumns + ` FROM events WHERE person_id = $1 ORDER BY id`

func (q *Queries) ListEventsForPerson(ctx context.Context, personID int64) ([]genealogy.Event, error) {
	rows, err := q.db.Query(ctx, listEventsForPerson, personID)
	return collect(rows, err, scanEventRows)
}

const listAllEvents = `SELECT ` + eventColumns + ` FROM events ORDER BY id`

func (q *Queries) ListAllEvents(ctx context.Context) ([]genealogy.Event, error) {
	rows, err := q.db.Query(ctx, listAllEvents)
	return collect(rows, err, scanEventRows)
}

const listEventsByType = `SELECT ` + eventColumns + ` FROM events WHERE event_type = $1 ORDER BY id`

func (q *Queries) ListEventsByType(ctx context.Context, eventType string) ([]genealogy.Event, error) {
	rows, err := q.db.Query(ctx, listEventsByType, eventType)
	return collect(rows, err, scanEventRows)
}

const reassignEvents = `UPDATE events SET person_id = $1 WHERE person_id = $2`

func (q *Queries) ReassignEvents(ctx context.Context, keepID, mergeID int64) (int64, error) {
	return q.db.Exec(ctx, reassignEvents, keepID, mergeID)
}

const deleteEventsBySourceDocument = `DELETE FROM events WHERE source_document_id = $1`

func (q *Queries) DeleteEventsBySourceDocument(ctx context.Context, documentID int64) (int64, error) {
	return q.db.Exec(ctx, deleteEventsBySourceDocument, documentID)
}

const deleteEventsForPerson = `DELETE FROM events WHERE person_id = $1`

func (q *Queries) DeleteEventsForPerson(ctx context.Context, personID int64) (int64, error) {
	return q.db.Exec(ctx, deleteEventsForPerson, personID)
}
