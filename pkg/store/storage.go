package store

import (
	"context"

	"github.com/kinfolk-ai/kinfolk/pkg/extraction"
	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
)

// EntityStorage is the transactional store for documents, people and the
// facts attached to them. Every mutating method runs in exactly one
// transaction and leaves no partial state behind on failure.
type EntityStorage interface {
	AddDocument(ctx context.Context, doc genealogy.Document) (genealogy.Document, bool, error)
	GetDocument(ctx context.Context, id int64) (genealogy.Document, error)
	ListDocumentSources(ctx context.Context) ([]DocumentSource, error)
	SetDocumentType(ctx context.Context, id int64, documentType string) error
	DeleteDocument(ctx context.Context, id int64) (DeleteReport, error)

	AddPerson(ctx context.Context, person genealogy.Person) (genealogy.Person, error)
	GetPerson(ctx context.Context, id int64) (genealogy.Person, error)
	GetPersonDetail(ctx context.Context, id int64) (PersonDetail, error)
	ListPeople(ctx context.Context) ([]genealogy.Person, error)
	FindPersonByName(ctx context.Context, query string) ([]genealogy.Person, error)
	SetFamily(ctx context.Context, personID int64, familyName, familySide string) error
	ListFamilies(ctx context.Context) ([]genealogy.Family, error)

	AddName(ctx context.Context, name genealogy.Name) (genealogy.Name, error)
	AddEvent(ctx context.Context, event genealogy.Event) (genealogy.Event, error)
	AddRelationship(ctx context.Context, rel genealogy.Relationship) (genealogy.Relationship, error)
	LinkPersonDocument(ctx context.Context, link genealogy.PersonDocument) (genealogy.PersonDocument, bool, error)

	StoreExtraction(ctx context.Context, documentID int64, result extraction.Result, opts ExtractionOptions) (ExtractionReport, error)

	ListPersonProfiles(ctx context.Context) ([]genealogy.PersonProfile, error)
	GetFamilyTree(ctx context.Context, personID int64) (FamilyTree, error)
	GetTreeGraph(ctx context.Context, personID int64, depth int) (TreeGraph, error)
	GetSnapshot(ctx context.Context) (Snapshot, error)
	ListMerges(ctx context.Context, limit int) ([]genealogy.MergeRecord, error)
	Stats(ctx context.Context) (genealogy.Stats, error)
}

// Notifier publishes entity change events to downstream consumers once a
// transaction has committed. Failures are reported, never rolled back.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

const (
	EventPersonMerged    = "person.merged"
	EventDocumentDeleted = "document.deleted"
	EventExtraction      = "extraction.stored"
)

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }
