package gedcom

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	variant := "variant"
	snap := store.Snapshot{
		People: []genealogy.Person{
			{ID: 2, PrimaryName: "Mary Hill", Notes: genealogy.StringPtr("first line\nsecond line")},
			{ID: 1, PrimaryName: "John Hill"},
			{ID: 3, PrimaryName: "Edith Hill"},
		},
		Names: []genealogy.Name{{ID: 1, PersonID: 1, Name: "Johnny Hill", NameType: &variant}},
		Events: []genealogy.Event{
			{ID: 1, PersonID: 1, EventType: "birth", Date: genealogy.StringPtr("1850"), Place: genealogy.StringPtr("York")},
			{ID: 2, PersonID: 3, EventType: "baptism", Date: genealogy.StringPtr("1881")},
		},
		Relationships: []genealogy.Relationship{
			{ID: 1, SourcePersonID: 1, TargetPersonID: 2, RelationshipType: "spouse"},
			{ID: 2, SourcePersonID: 2, TargetPersonID: 1, RelationshipType: "spouse"},
			{ID: 3, SourcePersonID: 3, TargetPersonID: 2, RelationshipType: "parent"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, snap))

	want := strings.Join([]string{
		"0 HEAD",
		"1 SOUR kinfolk",
		"1 GEDC",
		"2 VERS 5.5.1",
		"2 FORM LINEAGE-LINKED",
		"1 CHAR UTF-8",
		"0 @I1@ INDI",
		"1 NAME John Hill",
		"1 NAME Johnny Hill",
		"2 TYPE variant",
		"1 BIRT",
		"2 DATE 1850",
		"2 PLAC York",
		"1 FAMS @F1@",
		"0 @I2@ INDI",
		"1 NAME Mary Hill",
		"1 NOTE first line",
		"2 CONT second line",
		"1 FAMS @F1@",
		"0 @I3@ INDI",
		"1 NAME Edith Hill",
		"1 EVEN",
		"2 TYPE baptism",
		"2 DATE 1881",
		"1 FAMC @F1@",
		"0 @F1@ FAM",
		"1 HUSB @I1@",
		"1 WIFE @I2@",
		"1 CHIL @I3@",
		"0 TRLR",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestWrite_SingleParentFamily(t *testing.T) {
	snap := store.Snapshot{
		People: []genealogy.Person{{ID: 1, PrimaryName: "Parent"}, {ID: 2, PrimaryName: "Child"}},
		Relationships: []genealogy.Relationship{
			{ID: 1, SourcePersonID: 2, TargetPersonID: 1, RelationshipType: "parent"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, snap))
	out := buf.String()
	assert.Contains(t, out, "0 @F1@ FAM\n1 HUSB @I1@\n1 CHIL @I2@\n")
	assert.NotContains(t, out, "WIFE")
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, store.Snapshot{}))
	assert.True(t, strings.HasSuffix(buf.String(), "0 TRLR\n"))
}
