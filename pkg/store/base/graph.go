package base

import (
	"context"

	"github.com/kinfolk-ai/kinfolk/internal/db"
	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/store"
)

// ListPersonProfiles reads every person with alternate names and the first
// birth and death event by id, in id order, from one consistent snapshot.
func (s *EntityDBStorage) ListPersonProfiles(ctx context.Context) ([]genealogy.PersonProfile, error) {
	var profiles []genealogy.PersonProfile
	err := s.read(ctx, "list person profiles", func(q *db.Queries) error {
		var err error
		profiles, err = LoadProfiles(ctx, q)
		return err
	})
	return profiles, err
}

// LoadProfiles builds profiles inside an open transaction.
func LoadProfiles(ctx context.Context, q *db.Queries) ([]genealogy.PersonProfile, error) {
	people, err := q.ListPeople(ctx)
	if err != nil {
		return nil, err
	}
	names, err := q.ListAllNames(ctx)
	if err != nil {
		return nil, err
	}
	events, err := q.ListAllEvents(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[int64]int, len(people))
	profiles := make([]genealogy.PersonProfile, len(people))
	for i, p := range people {
		index[p.ID] = i
		profiles[i] = genealogy.PersonProfile{ID: p.ID, PrimaryName: p.PrimaryName}
	}
	for _, n := range names {
		if i, ok := index[n.PersonID]; ok {
			profiles[i].AltNames = append(profiles[i].AltNames, n.Name)
		}
	}
	for _, e := range events {
		i, ok := index[e.PersonID]
		if !ok {
			continue
		}
		switch e.EventType {
		case genealogy.EventBirth:
			if profiles[i].Birth == nil {
				ev := e
				profiles[i].Birth = &ev
			}
		case genealogy.EventDeath:
			if profiles[i].Death == nil {
				ev := e
				profiles[i].Death = &ev
			}
		}
	}
	return profiles, nil
}

// GetFamilyTree returns parents, spouses and children of one person.
func (s *EntityDBStorage) GetFamilyTree(ctx context.Context, personID int64) (store.FamilyTree, error) {
	var tree store.FamilyTree
	err := s.read(ctx, "get family tree", func(q *db.Queries) error {
		p, err := RequirePerson(ctx, q, personID)
		if err != nil {
			return err
		}
		self, err := treePerson(ctx, q, p)
		if err != nil {
			return err
		}
		tree = store.FamilyTree{
			Person:   self,
			Parents:  []store.TreePerson{},
			Spouses:  []store.TreePerson{},
			Children: []store.TreePerson{},
		}

		rels, err := q.ListRelationshipsForPerson(ctx, personID)
		if err != nil {
			return err
		}
		for _, r := range rels {
			var otherID int64
			var bucket *[]store.TreePerson
			switch {
			case r.RelationshipType == genealogy.RelationshipParent && r.SourcePersonID == personID:
				otherID, bucket = r.TargetPersonID, &tree.Parents
			case r.RelationshipType == genealogy.RelationshipParent && r.TargetPersonID == personID:
				otherID, bucket = r.SourcePersonID, &tree.Children
			case r.RelationshipType == genealogy.RelationshipSpouse && r.SourcePersonID == personID:
				otherID, bucket = r.TargetPersonID, &tree.Spouses
			case r.RelationshipType == genealogy.RelationshipSpouse && r.TargetPersonID == personID:
				otherID, bucket = r.SourcePersonID, &tree.Spouses
			default:
				continue
			}
			if otherID == personID || containsTreePerson(*bucket, otherID) {
				continue
			}
			other, err := q.GetPerson(ctx, otherID)
			if err != nil {
				return notFound(err, "person", otherID)
			}
			tp, err := treePerson(ctx, q, other)
			if err != nil {
				return err
			}
			*bucket = append(*bucket, tp)
		}
		return nil
	})
	return tree, err
}

func containsTreePerson(people []store.TreePerson, id int64) bool {
	for _, p := range people {
		if p.ID == id {
			return true
		}
	}
	return false
}

func treePerson(ctx context.Context, q *db.Queries, p genealogy.Person) (store.TreePerson, error) {
	events, err := q.ListEventsForPerson(ctx, p.ID)
	if err != nil {
		return store.TreePerson{}, err
	}
	return buildTreePerson(p, events), nil
}

func buildTreePerson(p genealogy.Person, events []genealogy.Event) store.TreePerson {
	tp := store.TreePerson{
		ID:         p.ID,
		Name:       p.PrimaryName,
		FamilyName: p.FamilyName,
		FamilySide: p.FamilySide,
	}
	var sawBirth, sawDeath bool
	for _, e := range events {
		switch {
		case e.EventType == genealogy.EventBirth && !sawBirth:
			sawBirth = true
			tp.BirthDate, tp.BirthPlace = e.Date, e.Place
		case e.EventType == genealogy.EventDeath && !sawDeath:
			sawDeath = true
			tp.DeathDate = e.Date
		}
	}
	return tp
}

// GetTreeGraph returns people and relationships as a graph. With personID 0
// the whole store is returned; otherwise the neighbourhood of that person up
// to depth relationship hops (default 2).
func (s *EntityDBStorage) GetTreeGraph(ctx context.Context, personID int64, depth int) (store.TreeGraph, error) {
	if depth <= 0 {
		depth = 2
	}

	var graph store.TreeGraph
	err := s.read(ctx, "get tree graph", func(q *db.Queries) error {
		if personID != 0 {
			if _, err := RequirePerson(ctx, q, personID); err != nil {
				return err
			}
		}
		people, err := q.ListPeople(ctx)
		if err != nil {
			return err
		}
		rels, err := q.ListAllRelationships(ctx)
		if err != nil {
			return err
		}
		events, err := q.ListAllEvents(ctx)
		if err != nil {
			return err
		}

		include := map[int64]bool{}
		if personID == 0 {
			for _, p := range people {
				include[p.ID] = true
			}
		} else {
			include[personID] = true
			frontier := []int64{personID}
			for hop := 0; hop < depth && len(frontier) > 0; hop++ {
				var next []int64
				for _, r := range rels {
					for _, id := range frontier {
						var other int64
						switch id {
						case r.SourcePersonID:
							other = r.TargetPersonID
						case r.TargetPersonID:
							other = r.SourcePersonID
						default:
							continue
						}
						if !include[other] {
							include[other] = true
							next = append(next, other)
						}
					}
				}
				frontier = next
			}
		}

		byPerson := map[int64][]genealogy.Event{}
		for _, e := range events {
			byPerson[e.PersonID] = append(byPerson[e.PersonID], e)
		}

		graph = store.TreeGraph{Nodes: []store.TreePerson{}, Edges: []store.TreeEdge{}}
		for _, p := range people {
			if include[p.ID] {
				graph.Nodes = append(graph.Nodes, buildTreePerson(p, byPerson[p.ID]))
			}
		}
		for _, r := range rels {
			if include[r.SourcePersonID] && include[r.TargetPersonID] {
				graph.Edges = append(graph.Edges, store.TreeEdge{
					ID:         r.ID,
					Source:     r.SourcePersonID,
					Target:     r.TargetPersonID,
					Type:       r.RelationshipType,
					Confidence: r.Confidence,
				})
			}
		}
		return nil
	})
	return graph, err
}

// GetSnapshot reads every table in one read-only transaction.
func (s *EntityDBStorage) GetSnapshot(ctx context.Context) (store.Snapshot, error) {
	var snap store.Snapshot
	err := s.read(ctx, "get snapshot", func(q *db.Queries) error {
		var err error
		if snap.Documents, err = q.ListDocuments(ctx); err != nil {
			return err
		}
		if snap.People, err = q.ListPeople(ctx); err != nil {
			return err
		}
		if snap.Names, err = q.ListAllNames(ctx); err != nil {
			return err
		}
		if snap.Events, err = q.ListAllEvents(ctx); err != nil {
			return err
		}
		snap.Relationships, err = q.ListAllRelationships(ctx)
		return err
	})
	return snap, err
}

// ListMerges returns the merge log, newest first.
func (s *EntityDBStorage) ListMerges(ctx context.Context, limit int) ([]genealogy.MergeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []genealogy.MergeRecord
	err := s.read(ctx, "list merges", func(q *db.Queries) error {
		var err error
		out, err = q.ListMergeRecords(ctx, limit)
		return err
	})
	return out, err
}

func (s *EntityDBStorage) Stats(ctx context.Context) (genealogy.Stats, error) {
	var out genealogy.Stats
	err := s.read(ctx, "stats", func(q *db.Queries) error {
		var err error
		out, err = q.GetStats(ctx)
		return err
	})
	return out, err
}
