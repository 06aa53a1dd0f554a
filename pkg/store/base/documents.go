package base

import (
	"context"
	"errors"
	"fmt"

	"github.com/kinfolk-ai/kinfolk/internal/db"
	"github.com/kinfolk-ai/kinfolk/internal/util"
	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"
	"github.com/kinfolk-ai/kinfolk/pkg/store"
)

// AddDocument stores a page. If the (source, page) pair already exists the
// existing row is returned and created is false.
func (s *EntityDBStorage) AddDocument(ctx context.Context, doc genealogy.Document) (genealogy.Document, bool, error) {
	valid, err := genealogy.NewDocument(doc.Source, doc.Page, util.SanitizeText(doc.OCRText))
	if err != nil {
		return genealogy.Document{}, false, err
	}
	valid.DocumentType = genealogy.StringPtr(genealogy.Deref(doc.DocumentType))

	var out genealogy.Document
	var created bool
	err = s.write(ctx, "add document", func(q *db.Queries) error {
		existing, err := q.GetDocumentBySourcePage(ctx, valid.Source, valid.Page)
		if err == nil {
			out, created = existing, false
			return nil
		}
		if !errors.Is(err, db.ErrNoRows) {
			return err
		}

		id, err := q.InsertDocument(ctx, db.InsertDocumentParams{
			Source:       valid.Source,
			Page:         valid.Page,
			OCRText:      valid.OCRText,
			DocumentType: valid.DocumentType,
			CreatedAt:    s.now(),
		})
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		out, err = q.GetDocument(ctx, id)
		created = true
		return err
	})
	if err != nil {
		return genealogy.Document{}, false, err
	}
	return out, created, nil
}

func (s *EntityDBStorage) GetDocument(ctx context.Context, id int64) (genealogy.Document, error) {
	var out genealogy.Document
	err := s.read(ctx, "get document", func(q *db.Queries) error {
		var err error
		out, err = requireDocument(ctx, q, id)
		return err
	})
	return out, err
}

// ListDocumentSources groups pages by their source path, ordered by path.
func (s *EntityDBStorage) ListDocumentSources(ctx context.Context) ([]store.DocumentSource, error) {
	var docs []genealogy.Document
	err := s.read(ctx, "list documents", func(q *db.Queries) error {
		var err error
		docs, err = q.ListDocuments(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	sources := []store.DocumentSource{}
	for _, d := range docs {
		if n := len(sources); n > 0 && sources[n-1].Source == d.Source {
			sources[n-1].Pages = append(sources[n-1].Pages, d)
			continue
		}
		sources = append(sources, store.DocumentSource{Source: d.Source, Pages: []genealogy.Document{d}})
	}
	return sources, nil
}

func (s *EntityDBStorage) SetDocumentType(ctx context.Context, id int64, documentType string) error {
	return s.write(ctx, "set document type", func(q *db.Queries) error {
		if _, err := requireDocument(ctx, q, id); err != nil {
			return err
		}
		_, err := q.SetDocumentType(ctx, id, genealogy.StringPtr(documentType))
		return err
	})
}

// DeleteDocument removes every page sharing the document's source path,
// together with the facts whose only provenance is one of those pages.
// People that are also linked to other documents are kept and re-pointed to
// the lowest-id remaining linked document.
func (s *EntityDBStorage) DeleteDocument(ctx context.Context, id int64) (store.DeleteReport, error) {
	var report store.DeleteReport
	err := s.write(ctx, "delete document", func(q *db.Queries) error {
		report = store.DeleteReport{}

		doc, err := requireDocument(ctx, q, id)
		if err != nil {
			return err
		}
		report.Source = doc.Source

		pages, err := q.ListDocumentsBySource(ctx, doc.Source)
		if err != nil {
			return fmt.Errorf("list pages: %w", err)
		}
		inPages := make(map[int64]bool, len(pages))
		for _, p := range pages {
			inPages[p.ID] = true
		}

		for _, p := range pages {
			n, err := q.DeleteEventsBySourceDocument(ctx, p.ID)
			if err != nil {
				return fmt.Errorf("delete events: %w", err)
			}
			report.EventsDeleted += n

			n, err = q.DeleteRelationshipsBySourceDocument(ctx, p.ID)
			if err != nil {
				return fmt.Errorf("delete relationships: %w", err)
			}
			report.RelationshipsDeleted += n
		}

		for _, p := range pages {
			people, err := q.ListPeopleBySourceDocument(ctx, p.ID)
			if err != nil {
				return fmt.Errorf("list people: %w", err)
			}
			for _, person := range people {
				deleted, err := s.releasePerson(ctx, q, person.ID, inPages, &report)
				if err != nil {
					return err
				}
				if deleted {
					report.PeopleDeleted++
				} else {
					report.PeopleRetained++
				}
			}
		}

		for _, p := range pages {
			n, err := q.DeletePersonDocumentsByDocument(ctx, p.ID)
			if err != nil {
				return fmt.Errorf("delete document links: %w", err)
			}
			report.LinksDeleted += n

			if _, err := q.DeleteDocument(ctx, p.ID); err != nil {
				return fmt.Errorf("delete page %d: %w", p.ID, err)
			}
			report.PagesDeleted++
		}
		return nil
	})
	if err != nil {
		return store.DeleteReport{}, err
	}

	logger.Info("[Store] Deleted document",
		"source", report.Source,
		"pages", report.PagesDeleted,
		"people_deleted", report.PeopleDeleted,
		"people_retained", report.PeopleRetained,
	)
	report.Warnings = s.notify(ctx, store.Event{Type: store.EventDocumentDeleted, Payload: report})
	return report, nil
}

// releasePerson deletes a person whose provenance lies entirely within
// pages, or re-points its primary source to another linked document.
func (s *EntityDBStorage) releasePerson(
	ctx context.Context,
	q *db.Queries,
	personID int64,
	pages map[int64]bool,
	report *store.DeleteReport,
) (bool, error) {
	links, err := q.ListPersonDocuments(ctx, personID)
	if err != nil {
		return false, fmt.Errorf("list links: %w", err)
	}

	var other *int64
	for _, l := range links {
		if pages[l.DocumentID] {
			continue
		}
		if other == nil || l.DocumentID < *other {
			docID := l.DocumentID
			other = &docID
		}
	}

	if other != nil {
		if _, err := q.SetPersonSourceDocument(ctx, personID, other); err != nil {
			return false, fmt.Errorf("repoint person %d: %w", personID, err)
		}
		return false, nil
	}

	n, err := q.DeleteEventsForPerson(ctx, personID)
	if err != nil {
		return false, fmt.Errorf("delete events of person %d: %w", personID, err)
	}
	report.EventsDeleted += n

	n, err = q.DeleteRelationshipsForPerson(ctx, personID)
	if err != nil {
		return false, fmt.Errorf("delete relationships of person %d: %w", personID, err)
	}
	report.RelationshipsDeleted += n

	n, err = q.DeletePersonDocumentsForPerson(ctx, personID)
	if err != nil {
		return false, fmt.Errorf("delete links of person %d: %w", personID, err)
	}
	report.LinksDeleted += n

	if _, err := q.DeleteNamesForPerson(ctx, personID); err != nil {
		return false, fmt.Errorf("delete names of person %d: %w", personID, err)
	}
	if _, err := q.DeletePerson(ctx, personID); err != nil {
		return false, fmt.Errorf("delete person %d: %w", personID, err)
	}
	return true, nil
}
