// Package gedcom writes a store snapshot as a GEDCOM 5.5.1 lineage-linked
// file.
package gedcom

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/store"
)

const (
	sourceName = "kinfolk"
	version    = "5.5.1"
)

type family struct {
	id       int
	husband  int64
	wife     int64
	children []int64
}

func (f *family) has(personID int64) bool {
	return f.husband == personID || f.wife == personID
}

// Write renders snap. People are written in id order. Spouse relationships
// become FAM records with the relationship source as HUSB; a parent
// relationship (child is the source) adds the child to the first family of
// the parent, creating a single-parent family when there is none.
func Write(w io.Writer, snap store.Snapshot) error {
	bw := bufio.NewWriter(w)
	gw := &writer{w: bw}

	people := slices.Clone(snap.People)
	slices.SortFunc(people, func(a, b genealogy.Person) int { return cmp.Compare(a.ID, b.ID) })
	known := make(map[int64]bool, len(people))
	for _, p := range people {
		known[p.ID] = true
	}

	families := buildFamilies(snap.Relationships, known)
	spouseIn := map[int64][]int{}
	childIn := map[int64][]int{}
	for _, f := range families {
		for _, id := range []int64{f.husband, f.wife} {
			if id != 0 {
				spouseIn[id] = append(spouseIn[id], f.id)
			}
		}
		for _, c := range f.children {
			childIn[c] = append(childIn[c], f.id)
		}
	}

	names := map[int64][]genealogy.Name{}
	for _, n := range snap.Names {
		names[n.PersonID] = append(names[n.PersonID], n)
	}
	events := map[int64][]genealogy.Event{}
	for _, e := range snap.Events {
		events[e.PersonID] = append(events[e.PersonID], e)
	}

	gw.line(0, "HEAD", "")
	gw.line(1, "SOUR", sourceName)
	gw.line(1, "GEDC", "")
	gw.line(2, "VERS", version)
	gw.line(2, "FORM", "LINEAGE-LINKED")
	gw.line(1, "CHAR", "UTF-8")

	for _, p := range people {
		gw.record(indi(p.ID), "INDI")
		gw.line(1, "NAME", p.PrimaryName)
		for _, n := range names[p.ID] {
			gw.line(1, "NAME", n.Name)
			if n.NameType != nil {
				gw.line(2, "TYPE", *n.NameType)
			}
		}
		for _, e := range events[p.ID] {
			writeEvent(gw, e)
		}
		if p.Notes != nil {
			gw.line(1, "NOTE", *p.Notes)
		}
		for _, id := range spouseIn[p.ID] {
			gw.line(1, "FAMS", fam(id))
		}
		for _, id := range childIn[p.ID] {
			gw.line(1, "FAMC", fam(id))
		}
	}

	for _, f := range families {
		gw.record(fam(f.id), "FAM")
		if f.husband != 0 {
			gw.line(1, "HUSB", indi(f.husband))
		}
		if f.wife != 0 {
			gw.line(1, "WIFE", indi(f.wife))
		}
		for _, c := range f.children {
			gw.line(1, "CHIL", indi(c))
		}
	}

	gw.line(0, "TRLR", "")
	if gw.err != nil {
		return gw.err
	}
	return bw.Flush()
}

func buildFamilies(rels []genealogy.Relationship, known map[int64]bool) []*family {
	rels = slices.Clone(rels)
	slices.SortFunc(rels, func(a, b genealogy.Relationship) int { return cmp.Compare(a.ID, b.ID) })

	var families []*family
	byCouple := map[[2]int64]*family{}
	for _, r := range rels {
		if r.RelationshipType != genealogy.RelationshipSpouse || r.SourcePersonID == r.TargetPersonID {
			continue
		}
		if !known[r.SourcePersonID] || !known[r.TargetPersonID] {
			continue
		}
		key := [2]int64{min(r.SourcePersonID, r.TargetPersonID), max(r.SourcePersonID, r.TargetPersonID)}
		if _, ok := byCouple[key]; ok {
			continue
		}
		f := &family{id: len(families) + 1, husband: r.SourcePersonID, wife: r.TargetPersonID}
		byCouple[key] = f
		families = append(families, f)
	}

	for _, r := range rels {
		if r.RelationshipType != genealogy.RelationshipParent || r.SourcePersonID == r.TargetPersonID {
			continue
		}
		child, parent := r.SourcePersonID, r.TargetPersonID
		if !known[child] || !known[parent] {
			continue
		}
		var target *family
		for _, f := range families {
			if f.has(parent) {
				target = f
				break
			}
		}
		if target == nil {
			target = &family{id: len(families) + 1, husband: parent}
			families = append(families, target)
		}
		if !slices.Contains(target.children, child) {
			target.children = append(target.children, child)
		}
	}
	return families
}

func writeEvent(gw *writer, e genealogy.Event) {
	switch strings.ToLower(e.EventType) {
	case genealogy.EventBirth:
		gw.line(1, "BIRT", "")
	case genealogy.EventDeath:
		gw.line(1, "DEAT", "")
	case genealogy.EventMarriage:
		gw.line(1, "MARR", "")
	default:
		gw.line(1, "EVEN", "")
		gw.line(2, "TYPE", e.EventType)
	}
	if e.Date != nil {
		gw.line(2, "DATE", *e.Date)
	}
	if e.Place != nil {
		gw.line(2, "PLAC", *e.Place)
	}
	if e.Description != nil {
		gw.line(2, "NOTE", *e.Description)
	}
}

func indi(id int64) string {
	return fmt.Sprintf("@I%d@", id)
}

func fam(id int) string {
	return fmt.Sprintf("@F%d@", id)
}

type writer struct {
	w   *bufio.Writer
	err error
}

func (gw *writer) record(xref, tag string) {
	gw.printf("0 %s %s\n", xref, tag)
}

// line writes one tag. Embedded newlines continue on CONT lines one level
// deeper.
func (gw *writer) line(level int, tag, value string) {
	value = strings.ReplaceAll(value, "\r\n", "\n")
	parts := strings.Split(value, "\n")
	if parts[0] == "" {
		gw.printf("%d %s\n", level, tag)
	} else {
		gw.printf("%d %s %s\n", level, tag, parts[0])
	}
	for _, cont := range parts[1:] {
		if cont == "" {
			gw.printf("%d CONT\n", level+1)
			continue
		}
		gw.printf("%d CONT %s\n", level+1, cont)
	}
}

func (gw *writer) printf(format string, args ...any) {
	if gw.err != nil {
		return
	}
	_, gw.err = fmt.Fprintf(gw.w, format, args...)
}
