// Package merge folds one person into another inside a single transaction.
//
// The survivor keeps its id and primary name. Everything attached to the
// absorbed person (names, events, relationships and document links) is moved
// or deduplicated onto the survivor, the absorbed row is deleted and an audit
// record is written. Either all of it commits or none of it does.
package merge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kinfolk-ai/kinfolk/internal/db"
	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"
	"github.com/kinfolk-ai/kinfolk/pkg/similarity"
	"github.com/kinfolk-ai/kinfolk/pkg/store"
	"github.com/kinfolk-ai/kinfolk/pkg/store/base"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// LinkCollapse selects which document links of the absorbed person count as
// duplicates of links the survivor already has.
type LinkCollapse string

const (
	// LinkCollapseDocumentType drops a link only when the survivor already
	// has a link to the same document with the same link type.
	LinkCollapseDocumentType LinkCollapse = "document_type"
	// LinkCollapseDocument drops a link whenever the survivor is already
	// linked to the same document, whatever the type.
	LinkCollapseDocument LinkCollapse = "document"
)

// ParseLinkCollapse accepts a mode name, case-insensitively. Empty means
// LinkCollapseDocumentType.
func ParseLinkCollapse(s string) (LinkCollapse, error) {
	switch LinkCollapse(strings.ToLower(strings.TrimSpace(s))) {
	case "", LinkCollapseDocumentType:
		return LinkCollapseDocumentType, nil
	case LinkCollapseDocument:
		return LinkCollapseDocument, nil
	}
	return "", genealogy.NewValidationError("link_collapse", fmt.Sprintf("unknown mode %q", s))
}

const (
	defaultMergedBy      = "system"
	absorbedNameType     = "merged"
	reasonsSeparator     = "; "
	provenanceLinkNotice = "added to keep provenance of merged person"
)

// MergeOptions describe one merge for the audit log.
type MergeOptions struct {
	Confidence genealogy.Confidence
	Reasons    []string
	MergedBy   string
	// LinkCollapse overrides the manager default when set.
	LinkCollapse LinkCollapse
	// KeepAbsorbedPrimaryName stores the absorbed primary name as an
	// alternate name of the survivor.
	KeepAbsorbedPrimaryName bool
}

// MergeReport records what a merge moved, dropped and rewrote.
type MergeReport struct {
	PublicID             string   `json:"public_id"`
	KeepID               int64    `json:"keep_id"`
	MergedID             int64    `json:"merged_id"`
	MergedName           string   `json:"merged_name"`
	FamilyTransferred    bool     `json:"family_transferred"`
	NamesCopied          int      `json:"names_copied"`
	EventsMoved          int      `json:"events_moved"`
	RelationshipsMoved   int      `json:"relationships_moved"`
	SelfLoops            []int64  `json:"self_loops,omitempty"`
	DocumentLinksMoved   int      `json:"document_links_moved"`
	DocumentLinksDropped int      `json:"document_links_dropped"`
	ProvenanceLinkAdded  bool     `json:"provenance_link_added"`
	Warnings             []string `json:"warnings,omitempty"`
}

// Manager performs merges, each in a single transaction.
type Manager struct {
	runner       db.Runner
	notifier     store.Notifier
	linkCollapse LinkCollapse
	now          func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNotifier publishes person.merged after each committed merge.
func WithNotifier(n store.Notifier) ManagerOption {
	return func(m *Manager) {
		m.notifier = n
	}
}

// WithLinkCollapse sets the default duplicate link rule.
func WithLinkCollapse(c LinkCollapse) ManagerOption {
	return func(m *Manager) {
		m.linkCollapse = c
	}
}

// WithClock overrides the clock used for merge log and link timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager returns a manager that collapses links by document and type
// and notifies nobody unless configured otherwise.
func NewManager(runner db.Runner, opts ...ManagerOption) *Manager {
	m := &Manager{
		runner:       runner,
		notifier:     store.NopNotifier{},
		linkCollapse: LinkCollapseDocumentType,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(m)
	}
	return m
}

// Merge absorbs mergeID into keepID. A second call with the same ids fails
// with a NotFoundError because the absorbed person no longer exists.
func (m *Manager) Merge(ctx context.Context, keepID, mergeID int64, opts MergeOptions) (MergeReport, error) {
	if keepID <= 0 {
		return MergeReport{}, genealogy.NewValidationError("keep_id", "must be positive")
	}
	if mergeID <= 0 {
		return MergeReport{}, genealogy.NewValidationError("merge_id", "must be positive")
	}
	if keepID == mergeID {
		return MergeReport{}, genealogy.NewValidationError("merge_id", "cannot merge a person into itself")
	}
	if err := opts.Confidence.Validate(); err != nil {
		return MergeReport{}, err
	}
	collapse := m.linkCollapse
	if opts.LinkCollapse != "" {
		var err error
		if collapse, err = ParseLinkCollapse(string(opts.LinkCollapse)); err != nil {
			return MergeReport{}, err
		}
	}

	var report MergeReport
	err := m.runner.InTx(ctx, "merge people", db.ReadWrite, func(q *db.Queries) error {
		mt := &mergeTx{
			q:        q,
			opts:     opts,
			collapse: collapse,
			now:      m.now(),
		}
		var err error
		report, err = mt.run(ctx, keepID, mergeID)
		return err
	})
	if err != nil {
		return MergeReport{}, err
	}

	for _, id := range report.SelfLoops {
		logger.Warn("[Merge] Relationship became a self-loop", "relationship_id", id, "person_id", keepID)
	}
	logger.Info("[Merge] Merged person",
		"keep_id", keepID,
		"merged_id", mergeID,
		"merged_name", report.MergedName,
		"names", report.NamesCopied,
		"events", report.EventsMoved,
		"relationships", report.RelationshipsMoved,
		"links_moved", report.DocumentLinksMoved,
		"links_dropped", report.DocumentLinksDropped,
	)

	if err := m.notifier.Notify(ctx, store.Event{Type: store.EventPersonMerged, Payload: report}); err != nil {
		logger.Warn("[Merge] Downstream notification failed", "keep_id", keepID, "merged_id", mergeID, "err", err)
		report.Warnings = append(report.Warnings, "downstream notification failed: "+err.Error())
	}
	return report, nil
}

type mergeTx struct {
	q        *db.Queries
	opts     MergeOptions
	collapse LinkCollapse
	now      time.Time
}

func (mt *mergeTx) run(ctx context.Context, keepID, mergeID int64) (MergeReport, error) {
	keep, err := base.RequirePerson(ctx, mt.q, keepID)
	if err != nil {
		return MergeReport{}, err
	}
	absorbed, err := base.RequirePerson(ctx, mt.q, mergeID)
	if err != nil {
		return MergeReport{}, err
	}

	report := MergeReport{KeepID: keepID, MergedID: mergeID, MergedName: absorbed.PrimaryName}

	if keep.FamilyName == nil && absorbed.FamilyName != nil {
		if _, err := mt.q.SetPersonFamily(ctx, keepID, absorbed.FamilyName, absorbed.FamilySide); err != nil {
			return MergeReport{}, fmt.Errorf("transfer family: %w", err)
		}
		report.FamilyTransferred = true
	}
	if keep.SourceDocumentID == nil && absorbed.SourceDocumentID != nil {
		if _, err := mt.q.SetPersonSourceDocument(ctx, keepID, absorbed.SourceDocumentID); err != nil {
			return MergeReport{}, fmt.Errorf("adopt source document: %w", err)
		}
	}

	if report.NamesCopied, err = mt.copyNames(ctx, keep, absorbed); err != nil {
		return MergeReport{}, err
	}

	moved, err := mt.q.ReassignEvents(ctx, keepID, mergeID)
	if err != nil {
		return MergeReport{}, fmt.Errorf("reassign events: %w", err)
	}
	report.EventsMoved = int(moved)

	if report.RelationshipsMoved, report.SelfLoops, err = mt.moveRelationships(ctx, keepID, mergeID); err != nil {
		return MergeReport{}, err
	}

	if err := mt.moveLinks(ctx, keepID, absorbed, &report); err != nil {
		return MergeReport{}, err
	}

	if _, err := mt.q.DeleteNamesForPerson(ctx, mergeID); err != nil {
		return MergeReport{}, fmt.Errorf("delete absorbed names: %w", err)
	}
	if _, err := mt.q.DeletePerson(ctx, mergeID); err != nil {
		return MergeReport{}, fmt.Errorf("delete absorbed person: %w", err)
	}

	publicID, err := gonanoid.New()
	if err != nil {
		return MergeReport{}, fmt.Errorf("generate merge id: %w", err)
	}
	mergedBy := strings.TrimSpace(mt.opts.MergedBy)
	if mergedBy == "" {
		mergedBy = defaultMergedBy
	}
	_, err = mt.q.InsertMergeRecord(ctx, db.InsertMergeRecordParams{
		PublicID:             publicID,
		KeepID:               keepID,
		MergedID:             mergeID,
		MergedName:           absorbed.PrimaryName,
		Confidence:           mt.opts.Confidence,
		Reasons:              strings.Join(mt.opts.Reasons, reasonsSeparator),
		MergedBy:             mergedBy,
		NamesCopied:          report.NamesCopied,
		EventsMoved:          report.EventsMoved,
		RelationshipsMoved:   report.RelationshipsMoved,
		DocumentLinksMoved:   report.DocumentLinksMoved,
		DocumentLinksDropped: report.DocumentLinksDropped,
		CreatedAt:            mt.now,
	})
	if err != nil {
		return MergeReport{}, fmt.Errorf("write merge record: %w", err)
	}
	report.PublicID = publicID
	return report, nil
}

// copyNames attaches the absorbed person's names to the survivor, skipping
// any that fold to a name the survivor already carries.
func (mt *mergeTx) copyNames(ctx context.Context, keep, absorbed genealogy.Person) (int, error) {
	existing, err := mt.q.ListNamesForPerson(ctx, keep.ID)
	if err != nil {
		return 0, fmt.Errorf("list survivor names: %w", err)
	}
	incoming, err := mt.q.ListNamesForPerson(ctx, absorbed.ID)
	if err != nil {
		return 0, fmt.Errorf("list absorbed names: %w", err)
	}

	seen := map[string]bool{similarity.Fold(keep.PrimaryName): true}
	for _, n := range existing {
		seen[similarity.Fold(n.Name)] = true
	}

	if mt.opts.KeepAbsorbedPrimaryName {
		nameType := absorbedNameType
		incoming = append([]genealogy.Name{{
			Name:       absorbed.PrimaryName,
			NameType:   &nameType,
			Confidence: absorbed.Confidence,
		}}, incoming...)
	}

	copied := 0
	for _, n := range incoming {
		key := similarity.Fold(n.Name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if _, err := mt.q.InsertName(ctx, db.InsertNameParams{
			PersonID:   keep.ID,
			Name:       n.Name,
			NameType:   n.NameType,
			Confidence: n.Confidence,
		}); err != nil {
			return 0, fmt.Errorf("copy name: %w", err)
		}
		copied++
	}
	return copied, nil
}

// moveRelationships re-points both ends independently and reports the ids
// of relationships that now start and end at the survivor.
func (mt *mergeTx) moveRelationships(ctx context.Context, keepID, mergeID int64) (int, []int64, error) {
	touched, err := mt.q.ListRelationshipsForPerson(ctx, mergeID)
	if err != nil {
		return 0, nil, fmt.Errorf("list relationships: %w", err)
	}
	if len(touched) == 0 {
		return 0, nil, nil
	}
	if _, err := mt.q.ReassignRelationshipSource(ctx, keepID, mergeID); err != nil {
		return 0, nil, fmt.Errorf("reassign relationship sources: %w", err)
	}
	if _, err := mt.q.ReassignRelationshipTarget(ctx, keepID, mergeID); err != nil {
		return 0, nil, fmt.Errorf("reassign relationship targets: %w", err)
	}

	moved := make(map[int64]bool, len(touched))
	for _, r := range touched {
		moved[r.ID] = true
	}
	loops, err := mt.q.ListSelfRelationships(ctx, keepID)
	if err != nil {
		return 0, nil, fmt.Errorf("list self relationships: %w", err)
	}
	var selfLoops []int64
	for _, r := range loops {
		if moved[r.ID] {
			selfLoops = append(selfLoops, r.ID)
		}
	}
	return len(touched), selfLoops, nil
}

type linkKey struct {
	documentID int64
	linkType   genealogy.LinkType
}

func (mt *mergeTx) key(l genealogy.PersonDocument) linkKey {
	if mt.collapse == LinkCollapseDocument {
		return linkKey{documentID: l.DocumentID}
	}
	return linkKey{documentID: l.DocumentID, linkType: l.LinkType}
}

func (mt *mergeTx) moveLinks(ctx context.Context, keepID int64, absorbed genealogy.Person, report *MergeReport) error {
	kept, err := mt.q.ListPersonDocuments(ctx, keepID)
	if err != nil {
		return fmt.Errorf("list survivor links: %w", err)
	}
	incoming, err := mt.q.ListPersonDocuments(ctx, absorbed.ID)
	if err != nil {
		return fmt.Errorf("list absorbed links: %w", err)
	}

	held := make(map[linkKey]bool, len(kept)+len(incoming))
	linked := make(map[int64]bool, len(kept)+len(incoming))
	for _, l := range kept {
		held[mt.key(l)] = true
		linked[l.DocumentID] = true
	}

	for _, l := range incoming {
		k := mt.key(l)
		if held[k] {
			if _, err := mt.q.DeletePersonDocument(ctx, l.ID); err != nil {
				return fmt.Errorf("drop duplicate link %d: %w", l.ID, err)
			}
			report.DocumentLinksDropped++
			continue
		}
		if _, err := mt.q.ReassignPersonDocument(ctx, l.ID, keepID); err != nil {
			return fmt.Errorf("move link %d: %w", l.ID, err)
		}
		held[k] = true
		linked[l.DocumentID] = true
		report.DocumentLinksMoved++
	}

	if absorbed.SourceDocumentID == nil || linked[*absorbed.SourceDocumentID] {
		return nil
	}
	notice := provenanceLinkNotice
	if _, _, err := mt.q.InsertPersonDocument(ctx, db.InsertPersonDocumentParams{
		PersonID:   keepID,
		DocumentID: *absorbed.SourceDocumentID,
		LinkType:   genealogy.LinkExtractedFrom,
		Notes:      &notice,
		CreatedAt:  mt.now,
	}); err != nil {
		return fmt.Errorf("add provenance link: %w", err)
	}
	report.ProvenanceLinkAdded = true
	return nil
}
