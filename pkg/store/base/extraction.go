package base

import (
	"context"
	"fmt"

	"github.com/kinfolk-ai/kinfolk/internal/db"
	"github.com/kinfolk-ai/kinfolk/internal/util"
	"github.com/kinfolk-ai/kinfolk/pkg/extraction"
	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"
	"github.com/kinfolk-ai/kinfolk/pkg/similarity"
	"github.com/kinfolk-ai/kinfolk/pkg/store"
)

// referencedPersonConfidence is assigned to people created only because an
// event or relationship named them.
const referencedPersonConfidence = 0.7

const variantNameType = "variant"

// StoreExtraction persists one page's extraction result in a single
// transaction. Listed people are always created. Names referenced by events
// and relationships resolve to people created from this page first, then to
// existing people found by name search, and only then to new people.
// Storing a result already stored for the same document is a no-op that
// reports AlreadyStored, so a redelivered job does not duplicate facts.
func (s *EntityDBStorage) StoreExtraction(
	ctx context.Context,
	documentID int64,
	result extraction.Result,
	opts store.ExtractionOptions,
) (store.ExtractionReport, error) {
	if err := result.Validate(); err != nil {
		return store.ExtractionReport{}, genealogy.NewValidationError("extraction", err.Error())
	}
	fingerprint, err := result.Fingerprint()
	if err != nil {
		return store.ExtractionReport{}, genealogy.NewValidationError("extraction", err.Error())
	}

	var report store.ExtractionReport
	err = s.write(ctx, "store extraction", func(q *db.Queries) error {
		report = store.ExtractionReport{DocumentID: documentID}
		if _, err := requireDocument(ctx, q, documentID); err != nil {
			return err
		}
		claimed, err := q.ClaimDocumentExtraction(ctx, documentID, fingerprint, s.now())
		if err != nil {
			return fmt.Errorf("claim extraction: %w", err)
		}
		if !claimed {
			report.AlreadyStored = true
			return nil
		}

		x := &extractionTx{
			s:        s,
			q:        q,
			docID:    documentID,
			family:   genealogy.StringPtr(opts.FamilyName),
			side:     genealogy.StringPtr(opts.FamilySide),
			resolved: map[string]int64{},
			report:   &report,
		}
		if x.family == nil {
			x.side = nil
		}
		return x.run(ctx, result)
	})
	if err != nil {
		return store.ExtractionReport{}, err
	}
	if report.AlreadyStored {
		logger.Info("[Store] Extraction already stored", "document_id", documentID)
		return report, nil
	}

	logger.Info("[Store] Stored extraction",
		"document_id", documentID,
		"people_created", report.PeopleCreated,
		"people_matched", report.PeopleMatched,
		"events", report.Events,
		"relationships", report.Relationships,
	)
	s.notify(ctx, store.Event{Type: store.EventExtraction, Payload: report})
	return report, nil
}

type extractionTx struct {
	s        *EntityDBStorage
	q        *db.Queries
	docID    int64
	family   *string
	side     *string
	resolved map[string]int64
	report   *store.ExtractionReport
}

func (x *extractionTx) run(ctx context.Context, result extraction.Result) error {
	for _, p := range result.People {
		if err := x.createListed(ctx, p); err != nil {
			return err
		}
	}

	for _, e := range result.Events {
		conf, err := genealogy.NewConfidence(e.Confidence)
		if err != nil {
			return err
		}
		personID, err := x.resolve(ctx, e.PersonName)
		if err != nil {
			return err
		}
		_, err = x.q.InsertEvent(ctx, db.InsertEventParams{
			PersonID:         personID,
			EventType:        util.SanitizeText(e.EventType),
			Date:             genealogy.StringPtr(util.SanitizeText(genealogy.Deref(e.Date))),
			Place:            genealogy.StringPtr(util.SanitizeText(genealogy.Deref(e.Place))),
			Description:      genealogy.StringPtr(util.SanitizeText(genealogy.Deref(e.Description))),
			Confidence:       conf,
			SourceDocumentID: &x.docID,
		})
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		x.report.Events++
	}

	for _, r := range result.Relationships {
		conf, err := genealogy.NewConfidence(r.Confidence)
		if err != nil {
			return err
		}
		p1, err := x.resolve(ctx, r.Person1)
		if err != nil {
			return err
		}
		p2, err := x.resolve(ctx, r.Person2)
		if err != nil {
			return err
		}
		_, err = x.q.InsertRelationship(ctx, db.InsertRelationshipParams{
			SourcePersonID:   p1,
			TargetPersonID:   p2,
			RelationshipType: util.SanitizeText(r.RelationshipType),
			Confidence:       conf,
			Notes:            util.SanitizeTextPtr(r.Notes),
			SourceDocumentID: &x.docID,
		})
		if err != nil {
			return fmt.Errorf("insert relationship: %w", err)
		}
		x.report.Relationships++
	}
	return nil
}

func (x *extractionTx) createListed(ctx context.Context, p extraction.Person) error {
	conf, err := genealogy.NewConfidence(p.Confidence)
	if err != nil {
		return err
	}
	primary := util.SanitizeText(p.PrimaryName)
	id, err := x.insertPerson(ctx, primary, util.SanitizeTextPtr(p.Notes), conf)
	if err != nil {
		return err
	}

	seen := map[string]bool{similarity.Fold(primary): true}
	for _, variant := range p.NameVariants {
		variant = util.SanitizeText(variant)
		key := similarity.Fold(variant)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		nameType := variantNameType
		if _, err := x.q.InsertName(ctx, db.InsertNameParams{
			PersonID:   id,
			Name:       variant,
			NameType:   &nameType,
			Confidence: conf,
		}); err != nil {
			return fmt.Errorf("insert name: %w", err)
		}
		x.report.Names++
		if _, ok := x.resolved[key]; !ok {
			x.resolved[key] = id
		}
	}
	x.resolved[similarity.Fold(primary)] = id
	return nil
}

func (x *extractionTx) insertPerson(ctx context.Context, name string, notes *string, conf genealogy.Confidence) (int64, error) {
	valid, err := genealogy.NewPerson(name, conf)
	if err != nil {
		return 0, err
	}
	id, err := x.q.InsertPerson(ctx, db.InsertPersonParams{
		PrimaryName:      valid.PrimaryName,
		Notes:            notes,
		Confidence:       conf,
		FamilyName:       x.family,
		FamilySide:       x.side,
		SourceDocumentID: &x.docID,
		CreatedAt:        x.s.now(),
	})
	if err != nil {
		return 0, fmt.Errorf("insert person: %w", err)
	}
	if err := x.link(ctx, id, genealogy.LinkExtractedFrom); err != nil {
		return 0, err
	}
	x.report.PeopleCreated++
	return id, nil
}

func (x *extractionTx) link(ctx context.Context, personID int64, linkType genealogy.LinkType) error {
	_, _, err := x.q.InsertPersonDocument(ctx, db.InsertPersonDocumentParams{
		PersonID:   personID,
		DocumentID: x.docID,
		LinkType:   linkType,
		CreatedAt:  x.s.now(),
	})
	if err != nil {
		return fmt.Errorf("link person %d: %w", personID, err)
	}
	return nil
}

// resolve maps a referenced name to a person id. Among search hits an exact
// folded match on any name wins, otherwise the lowest id.
func (x *extractionTx) resolve(ctx context.Context, name string) (int64, error) {
	name = util.SanitizeText(name)
	key := similarity.Fold(name)
	if key == "" {
		return 0, genealogy.NewValidationError("person_name", "must not be empty")
	}
	if id, ok := x.resolved[key]; ok {
		return id, nil
	}

	matches, err := findPersonByName(ctx, x.q, name)
	if err != nil {
		return 0, err
	}
	if len(matches) > 0 {
		id, err := x.pickMatch(ctx, key, matches)
		if err != nil {
			return 0, err
		}
		if err := x.link(ctx, id, genealogy.LinkMentionedIn); err != nil {
			return 0, err
		}
		x.resolved[key] = id
		x.report.PeopleMatched++
		return id, nil
	}

	conf := genealogy.MustConfidence(referencedPersonConfidence)
	id, err := x.insertPerson(ctx, name, nil, conf)
	if err != nil {
		return 0, err
	}
	x.resolved[key] = id
	return id, nil
}

func (x *extractionTx) pickMatch(ctx context.Context, key string, matches []genealogy.Person) (int64, error) {
	for _, m := range matches {
		if similarity.Fold(m.PrimaryName) == key {
			return m.ID, nil
		}
	}
	for _, m := range matches {
		names, err := x.q.ListNamesForPerson(ctx, m.ID)
		if err != nil {
			return 0, fmt.Errorf("list names: %w", err)
		}
		for _, n := range names {
			if similarity.Fold(n.Name) == key {
				return m.ID, nil
			}
		}
	}
	return matches[0].ID, nil
}
