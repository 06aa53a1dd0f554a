package store

import "github.com/kinfolk-ai/kinfolk/pkg/genealogy"

// DocumentSource groups the pages ingested from one source file.
type DocumentSource struct {
	Source string               `json:"source" yaml:"source"`
	Pages  []genealogy.Document `json:"pages" yaml:"pages"`
}

// DeleteReport describes what deleting a source removed. People referenced
// by other sources are retained.
type DeleteReport struct {
	Source               string   `json:"source"`
	PagesDeleted         int      `json:"pages_deleted"`
	PeopleDeleted        int      `json:"people_deleted"`
	PeopleRetained       int      `json:"people_retained"`
	EventsDeleted        int64    `json:"events_deleted"`
	RelationshipsDeleted int64    `json:"relationships_deleted"`
	LinksDeleted         int64    `json:"links_deleted"`
	Warnings             []string `json:"warnings,omitempty"`
}

// ExtractionOptions tag every person created by an extraction.
type ExtractionOptions struct {
	FamilyName string
	FamilySide string
}

// ExtractionReport counts what StoreExtraction wrote for one page.
type ExtractionReport struct {
	DocumentID    int64 `json:"document_id"`
	PeopleCreated int   `json:"people_created"`
	PeopleMatched int   `json:"people_matched"`
	Names         int   `json:"names"`
	Events        int   `json:"events"`
	Relationships int   `json:"relationships"`
	// AlreadyStored is set when the same result was stored for the document
	// before and nothing was written.
	AlreadyStored bool `json:"already_stored,omitempty"`
}

// PersonDetail is a person with everything attached to them.
type PersonDetail struct {
	Person        genealogy.Person           `json:"person"`
	Names         []genealogy.Name           `json:"names"`
	Events        []genealogy.Event          `json:"events"`
	Relationships []genealogy.Relationship   `json:"relationships"`
	Documents     []genealogy.PersonDocument `json:"documents"`
}

type TreePerson struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	BirthDate  *string `json:"birth_date,omitempty"`
	BirthPlace *string `json:"birth_place,omitempty"`
	DeathDate  *string `json:"death_date,omitempty"`
	FamilyName *string `json:"family_name,omitempty"`
	FamilySide *string `json:"family_side,omitempty"`
}

// FamilyTree is the immediate family of one person. Parents are targets of
// the person's "parent" relationships, children are their sources.
type FamilyTree struct {
	Person   TreePerson   `json:"person"`
	Parents  []TreePerson `json:"parents"`
	Spouses  []TreePerson `json:"spouses"`
	Children []TreePerson `json:"children"`
}

type TreeEdge struct {
	ID         int64                `json:"id"`
	Source     int64                `json:"source"`
	Target     int64                `json:"target"`
	Type       string               `json:"type"`
	Confidence genealogy.Confidence `json:"confidence"`
}

// TreeGraph is every person and relationship, for graph rendering.
type TreeGraph struct {
	Nodes []TreePerson `json:"nodes"`
	Edges []TreeEdge   `json:"edges"`
}

// Snapshot is a consistent copy of the whole store, read in one transaction.
type Snapshot struct {
	Documents     []genealogy.Document
	People        []genealogy.Person
	Names         []genealogy.Name
	Events        []genealogy.Event
	Relationships []genealogy.Relationship
}
