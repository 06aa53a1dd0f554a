package base

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/kinfolk-ai/kinfolk/internal/db"
	"github.com/kinfolk-ai/kinfolk/internal/util"
	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/similarity"
	"github.com/kinfolk-ai/kinfolk/pkg/store"
)

// AddPerson validates and inserts a person. A source document, when set,
// must exist.
func (s *EntityDBStorage) AddPerson(ctx context.Context, person genealogy.Person) (genealogy.Person, error) {
	valid, err := genealogy.NewPerson(util.SanitizeText(person.PrimaryName), person.Confidence)
	if err != nil {
		return genealogy.Person{}, err
	}

	var out genealogy.Person
	err = s.write(ctx, "add person", func(q *db.Queries) error {
		if person.SourceDocumentID != nil {
			if _, err := requireDocument(ctx, q, *person.SourceDocumentID); err != nil {
				return err
			}
		}
		id, err := q.InsertPerson(ctx, db.InsertPersonParams{
			PrimaryName:      valid.PrimaryName,
			Notes:            util.SanitizeTextPtr(person.Notes),
			Confidence:       valid.Confidence,
			FamilyName:       genealogy.StringPtr(genealogy.Deref(person.FamilyName)),
			FamilySide:       genealogy.StringPtr(genealogy.Deref(person.FamilySide)),
			SourceDocumentID: person.SourceDocumentID,
			CreatedAt:        s.now(),
		})
		if err != nil {
			return fmt.Errorf("insert person: %w", err)
		}
		out, err = q.GetPerson(ctx, id)
		return err
	})
	return out, err
}

func (s *EntityDBStorage) GetPerson(ctx context.Context, id int64) (genealogy.Person, error) {
	var out genealogy.Person
	err := s.read(ctx, "get person", func(q *db.Queries) error {
		var err error
		out, err = RequirePerson(ctx, q, id)
		return err
	})
	return out, err
}

// GetPersonDetail reads the person and everything attached in one snapshot.
func (s *EntityDBStorage) GetPersonDetail(ctx context.Context, id int64) (store.PersonDetail, error) {
	var out store.PersonDetail
	err := s.read(ctx, "get person detail", func(q *db.Queries) error {
		p, err := RequirePerson(ctx, q, id)
		if err != nil {
			return err
		}
		names, err := q.ListNamesForPerson(ctx, id)
		if err != nil {
			return err
		}
		events, err := q.ListEventsForPerson(ctx, id)
		if err != nil {
			return err
		}
		rels, err := q.ListRelationshipsForPerson(ctx, id)
		if err != nil {
			return err
		}
		links, err := q.ListPersonDocuments(ctx, id)
		if err != nil {
			return err
		}
		out = store.PersonDetail{
			Person:        p,
			Names:         names,
			Events:        events,
			Relationships: rels,
			Documents:     links,
		}
		return nil
	})
	return out, err
}

// ListPeople orders people by birth year, people without one last, then by
// folded primary name and id.
func (s *EntityDBStorage) ListPeople(ctx context.Context) ([]genealogy.Person, error) {
	var people []genealogy.Person
	years := map[int64]int{}
	err := s.read(ctx, "list people", func(q *db.Queries) error {
		var err error
		people, err = q.ListPeople(ctx)
		if err != nil {
			return err
		}
		births, err := q.ListEventsByType(ctx, genealogy.EventBirth)
		if err != nil {
			return err
		}
		clear(years)
		for _, e := range births {
			if _, seen := years[e.PersonID]; seen {
				continue
			}
			if y, ok := genealogy.Year(e.Date); ok {
				years[e.PersonID] = y
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(people, func(a, b genealogy.Person) int {
		ya, oka := years[a.ID]
		yb, okb := years[b.ID]
		switch {
		case oka && !okb:
			return -1
		case !oka && okb:
			return 1
		case oka && okb && ya != yb:
			return cmp.Compare(ya, yb)
		}
		if c := cmp.Compare(similarity.Fold(a.PrimaryName), similarity.Fold(b.PrimaryName)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return people, nil
}

// FindPersonByName returns people whose primary or alternate name contains
// query, case-insensitively, deduplicated and ordered by id.
func (s *EntityDBStorage) FindPersonByName(ctx context.Context, query string) ([]genealogy.Person, error) {
	var out []genealogy.Person
	err := s.read(ctx, "find person by name", func(q *db.Queries) error {
		var err error
		out, err = findPersonByName(ctx, q, query)
		return err
	})
	return out, err
}

func findPersonByName(ctx context.Context, q *db.Queries, query string) ([]genealogy.Person, error) {
	if genealogy.StringPtr(query) == nil {
		return nil, genealogy.NewValidationError("query", "must not be empty")
	}
	pattern := db.LikePattern(query)

	primary, err := q.SearchPeopleByPrimaryName(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("search primary names: %w", err)
	}
	alt, err := q.SearchPeopleByAltName(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("search alternate names: %w", err)
	}

	seen := make(map[int64]bool, len(primary)+len(alt))
	out := make([]genealogy.Person, 0, len(primary)+len(alt))
	for _, p := range append(primary, alt...) {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b genealogy.Person) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// SetFamily tags a person. An empty familyName clears both fields.
func (s *EntityDBStorage) SetFamily(ctx context.Context, personID int64, familyName, familySide string) error {
	return s.write(ctx, "set family", func(q *db.Queries) error {
		if _, err := RequirePerson(ctx, q, personID); err != nil {
			return err
		}
		name := genealogy.StringPtr(familyName)
		side := genealogy.StringPtr(familySide)
		if name == nil {
			side = nil
		}
		_, err := q.SetPersonFamily(ctx, personID, name, side)
		return err
	})
}

func (s *EntityDBStorage) ListFamilies(ctx context.Context) ([]genealogy.Family, error) {
	var out []genealogy.Family
	err := s.read(ctx, "list families", func(q *db.Queries) error {
		var err error
		out, err = q.ListFamilies(ctx)
		return err
	})
	return out, err
}

func (s *EntityDBStorage) AddName(ctx context.Context, name genealogy.Name) (genealogy.Name, error) {
	value := util.SanitizeText(name.Name)
	if genealogy.StringPtr(value) == nil {
		return genealogy.Name{}, genealogy.NewValidationError("name", "must not be empty")
	}
	if err := name.Confidence.Validate(); err != nil {
		return genealogy.Name{}, err
	}

	out := name
	out.Name = value
	err := s.write(ctx, "add name", func(q *db.Queries) error {
		if _, err := RequirePerson(ctx, q, name.PersonID); err != nil {
			return err
		}
		id, err := q.InsertName(ctx, db.InsertNameParams{
			PersonID:   name.PersonID,
			Name:       value,
			NameType:   genealogy.StringPtr(genealogy.Deref(name.NameType)),
			Confidence: name.Confidence,
		})
		out.ID = id
		return err
	})
	if err != nil {
		return genealogy.Name{}, err
	}
	return out, nil
}

// AddEvent validates the event type and attaches the event to an existing
// person.
func (s *EntityDBStorage) AddEvent(ctx context.Context, event genealogy.Event) (genealogy.Event, error) {
	valid, err := genealogy.NewEvent(event.PersonID, event.EventType, event.Confidence)
	if err != nil {
		return genealogy.Event{}, err
	}

	out := event
	out.EventType = valid.EventType
	err = s.write(ctx, "add event", func(q *db.Queries) error {
		if _, err := RequirePerson(ctx, q, event.PersonID); err != nil {
			return err
		}
		if event.SourceDocumentID != nil {
			if _, err := requireDocument(ctx, q, *event.SourceDocumentID); err != nil {
				return err
			}
		}
		id, err := q.InsertEvent(ctx, db.InsertEventParams{
			PersonID:         event.PersonID,
			EventType:        valid.EventType,
			Date:             util.SanitizeTextPtr(event.Date),
			Place:            util.SanitizeTextPtr(event.Place),
			Description:      util.SanitizeTextPtr(event.Description),
			Confidence:       event.Confidence,
			SourceDocumentID: event.SourceDocumentID,
		})
		out.ID = id
		return err
	})
	if err != nil {
		return genealogy.Event{}, err
	}
	return out, nil
}

// AddRelationship requires both people to exist.
func (s *EntityDBStorage) AddRelationship(ctx context.Context, rel genealogy.Relationship) (genealogy.Relationship, error) {
	valid, err := genealogy.NewRelationship(rel.SourcePersonID, rel.TargetPersonID, rel.RelationshipType, rel.Confidence)
	if err != nil {
		return genealogy.Relationship{}, err
	}

	out := rel
	out.RelationshipType = valid.RelationshipType
	err = s.write(ctx, "add relationship", func(q *db.Queries) error {
		if _, err := RequirePerson(ctx, q, rel.SourcePersonID); err != nil {
			return err
		}
		if _, err := RequirePerson(ctx, q, rel.TargetPersonID); err != nil {
			return err
		}
		if rel.SourceDocumentID != nil {
			if _, err := requireDocument(ctx, q, *rel.SourceDocumentID); err != nil {
				return err
			}
		}
		id, err := q.InsertRelationship(ctx, db.InsertRelationshipParams{
			SourcePersonID:   rel.SourcePersonID,
			TargetPersonID:   rel.TargetPersonID,
			RelationshipType: valid.RelationshipType,
			Confidence:       rel.Confidence,
			Notes:            util.SanitizeTextPtr(rel.Notes),
			SourceDocumentID: rel.SourceDocumentID,
		})
		out.ID = id
		return err
	})
	if err != nil {
		return genealogy.Relationship{}, err
	}
	return out, nil
}

// LinkPersonDocument records a typed person-document link. created is false
// when the same (person, document, link type) link already exists.
func (s *EntityDBStorage) LinkPersonDocument(ctx context.Context, link genealogy.PersonDocument) (genealogy.PersonDocument, bool, error) {
	if err := link.LinkType.Validate(); err != nil {
		return genealogy.PersonDocument{}, false, err
	}

	out := link
	var created bool
	err := s.write(ctx, "link person document", func(q *db.Queries) error {
		if _, err := RequirePerson(ctx, q, link.PersonID); err != nil {
			return err
		}
		if _, err := requireDocument(ctx, q, link.DocumentID); err != nil {
			return err
		}
		out.CreatedAt = s.now()
		id, ok, err := q.InsertPersonDocument(ctx, db.InsertPersonDocumentParams{
			PersonID:   link.PersonID,
			DocumentID: link.DocumentID,
			LinkType:   link.LinkType,
			Notes:      util.SanitizeTextPtr(link.Notes),
			CreatedAt:  out.CreatedAt,
		})
		out.ID, created = id, ok
		return err
	})
	if err != nil {
		return genealogy.PersonDocument{}, false, err
	}
	return out, created, nil
}
