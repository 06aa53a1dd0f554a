// Package genealogy holds the entity model shared by the store, the
// similarity scorer and the merge manager.
package genealogy

import (
	"strings"
	"time"
)

type LinkType string

const (
	LinkExtractedFrom LinkType = "extracted_from"
	LinkMentionedIn   LinkType = "mentioned_in"
	LinkPortraitOf    LinkType = "portrait_of"
)

const (
	EventBirth    = "birth"
	EventDeath    = "death"
	EventMarriage = "marriage"

	RelationshipParent  = "parent"
	RelationshipSpouse  = "spouse"
	RelationshipSibling = "sibling"
)

// Document is a single page of a scanned source.
type Document struct {
	ID           int64     `json:"id"`
	Source       string    `json:"source"`
	Page         int       `json:"page"`
	OCRText      string    `json:"ocr_text"`
	DocumentType *string   `json:"document_type,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Person is an individual in the tree. PrimaryName is their display name.
type Person struct {
	ID               int64      `json:"id"`
	PrimaryName      string     `json:"primary_name"`
	Notes            *string    `json:"notes,omitempty"`
	Confidence       Confidence `json:"confidence"`
	FamilyName       *string    `json:"family_name,omitempty"`
	FamilySide       *string    `json:"family_side,omitempty"`
	SourceDocumentID *int64     `json:"source_document_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Name is an alternate spelling or variant attached to a person.
type Name struct {
	ID         int64      `json:"id"`
	PersonID   int64      `json:"person_id"`
	Name       string     `json:"name"`
	NameType   *string    `json:"name_type,omitempty"`
	Confidence Confidence `json:"confidence"`
}

// Event is a dated fact about a person, such as a birth or census entry.
type Event struct {
	ID               int64      `json:"id"`
	PersonID         int64      `json:"person_id"`
	EventType        string     `json:"event_type"`
	Date             *string    `json:"date,omitempty"`
	Place            *string    `json:"place,omitempty"`
	Description      *string    `json:"description,omitempty"`
	Confidence       Confidence `json:"confidence"`
	SourceDocumentID *int64     `json:"source_document_id,omitempty"`
}

// Relationship is directed: a "parent" relationship points from child to
// parent.
type Relationship struct {
	ID               int64      `json:"id"`
	SourcePersonID   int64      `json:"source_person_id"`
	TargetPersonID   int64      `json:"target_person_id"`
	RelationshipType string     `json:"relationship_type"`
	Confidence       Confidence `json:"confidence"`
	Notes            *string    `json:"notes,omitempty"`
	SourceDocumentID *int64     `json:"source_document_id,omitempty"`
}

// PersonDocument links a person to a page with a typed role.
type PersonDocument struct {
	ID         int64     `json:"id"`
	PersonID   int64     `json:"person_id"`
	DocumentID int64     `json:"document_id"`
	LinkType   LinkType  `json:"link_type"`
	Notes      *string   `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// MergeRecord is the audit row written for every committed merge.
type MergeRecord struct {
	ID                   int64      `json:"id"`
	PublicID             string     `json:"public_id"`
	KeepID               int64      `json:"keep_id"`
	MergedID             int64      `json:"merged_id"`
	MergedName           string     `json:"merged_name"`
	Confidence           Confidence `json:"confidence"`
	Reasons              string     `json:"reasons"`
	MergedBy             string     `json:"merged_by"`
	NamesCopied          int        `json:"names_copied"`
	EventsMoved          int        `json:"events_moved"`
	RelationshipsMoved   int        `json:"relationships_moved"`
	DocumentLinksMoved   int        `json:"document_links_moved"`
	DocumentLinksDropped int        `json:"document_links_dropped"`
	CreatedAt            time.Time  `json:"created_at"`
}

// Family counts the people tagged with one family name and side.
type Family struct {
	FamilyName  string  `json:"family_name"`
	FamilySide  *string `json:"family_side,omitempty"`
	PersonCount int     `json:"person_count"`
}

// PersonProfile is the read model the similarity scorer works on.
type PersonProfile struct {
	ID          int64
	PrimaryName string
	AltNames    []string
	Birth       *Event
	Death       *Event
}

// AllNames returns the primary name followed by the alternates.
func (p PersonProfile) AllNames() []string {
	names := make([]string, 0, len(p.AltNames)+1)
	names = append(names, p.PrimaryName)
	names = append(names, p.AltNames...)
	return names
}

// NewPerson validates the fields a person must carry.
func NewPerson(primaryName string, confidence Confidence) (Person, error) {
	primaryName = strings.TrimSpace(primaryName)
	if primaryName == "" {
		return Person{}, NewValidationError("primary_name", "must not be empty")
	}
	if err := confidence.Validate(); err != nil {
		return Person{}, err
	}
	return Person{PrimaryName: primaryName, Confidence: confidence}, nil
}

func NewEvent(personID int64, eventType string, confidence Confidence) (Event, error) {
	if personID <= 0 {
		return Event{}, NewValidationError("person_id", "must be positive")
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return Event{}, NewValidationError("event_type", "must not be empty")
	}
	if err := confidence.Validate(); err != nil {
		return Event{}, err
	}
	return Event{PersonID: personID, EventType: eventType, Confidence: confidence}, nil
}

func NewRelationship(sourceID, targetID int64, relType string, confidence Confidence) (Relationship, error) {
	if sourceID <= 0 {
		return Relationship{}, NewValidationError("source_person_id", "must be positive")
	}
	if targetID <= 0 {
		return Relationship{}, NewValidationError("target_person_id", "must be positive")
	}
	relType = strings.TrimSpace(relType)
	if relType == "" {
		return Relationship{}, NewValidationError("relationship_type", "must not be empty")
	}
	if err := confidence.Validate(); err != nil {
		return Relationship{}, err
	}
	return Relationship{
		SourcePersonID:   sourceID,
		TargetPersonID:   targetID,
		RelationshipType: relType,
		Confidence:       confidence,
	}, nil
}

func NewDocument(source string, page int, ocrText string) (Document, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return Document{}, NewValidationError("source", "must not be empty")
	}
	if page < 0 {
		return Document{}, NewValidationError("page", "must not be negative")
	}
	return Document{Source: source, Page: page, OCRText: ocrText}, nil
}

// Validate rejects an empty link type.
func (l LinkType) Validate() error {
	if strings.TrimSpace(string(l)) == "" {
		return NewValidationError("link_type", "must not be empty")
	}
	return nil
}

// StringPtr returns nil for blank strings.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Stats are row counts per table.
type Stats struct {
	Documents     int64 `json:"documents" yaml:"documents"`
	People        int64 `json:"people" yaml:"people"`
	Names         int64 `json:"names" yaml:"names"`
	Events        int64 `json:"events" yaml:"events"`
	Relationships int64 `json:"relationships" yaml:"relationships"`
	DocumentLinks int64 `json:"document_links" yaml:"document_links"`
	Merges        int64 `json:"merges" yaml:"merges"`
}
