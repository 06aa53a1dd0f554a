package similarity

import (
	"errors"
	"testing"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func birth(date, place string) *genealogy.Event {
	e := &genealogy.Event{EventType: genealogy.EventBirth}
	if date != "" {
		e.Date = strp(date)
	}
	if place != "" {
		e.Place = strp(place)
	}
	return e
}

func death(date string) *genealogy.Event {
	return &genealogy.Event{EventType: genealogy.EventDeath, Date: strp(date)}
}

func newScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(DefaultConfig())
	require.NoError(t, err)
	return s
}

func TestIndelRatio(t *testing.T) {
	assert.InDelta(t, 18.0/19.0, IndelRatio("jon smith", "john smith"), 1e-9)
	assert.Equal(t, 1.0, IndelRatio("", ""))
	assert.Equal(t, 0.0, IndelRatio("abc", ""))
	assert.Equal(t, 1.0, IndelRatio("anna", "anna"))
	assert.InDelta(t, IndelRatio("maria", "marie"), IndelRatio("marie", "maria"), 1e-12)
}

func TestLevenshteinRatio(t *testing.T) {
	assert.InDelta(t, 0.9, LevenshteinRatio("jon smith", "john smith"), 1e-9)
	assert.Equal(t, 1.0, LevenshteinRatio("", ""))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "josé garcía", Fold("  JOSÉ   García "))
	assert.True(t, EqualFold("José", "José"))
	assert.True(t, EqualFold("STRASSE", "strasse"))
}

func TestScore_NameDateAndPlace(t *testing.T) {
	s := newScorer(t)
	a := genealogy.PersonProfile{ID: 1, PrimaryName: "John Smith", Birth: birth("1850-03-02", "Boston")}
	b := genealogy.PersonProfile{ID: 2, PrimaryName: "Jon Smith", Birth: birth("1850-03-02", "Boston")}

	res, ok := s.Score(a, b)
	require.True(t, ok)
	assert.Equal(t, []string{"name match: 0.95", "same birth date", "similar birth place"}, res.Reasons())
	assert.False(t, res.Veto)
	assert.InDelta(t, (18.0/19.0+1.0+0.8)/3, res.Confidence, 1e-9)
	assert.GreaterOrEqual(t, res.Confidence, 0.9)
	assert.Less(t, res.Confidence, 1.0)
}

func TestScore_DifferentBirthDatesVeto(t *testing.T) {
	s := newScorer(t)
	a := genealogy.PersonProfile{ID: 1, PrimaryName: "John Smith", Birth: birth("1850", "")}
	b := genealogy.PersonProfile{ID: 2, PrimaryName: "John Smith", Birth: birth("1872", "")}

	res, ok := s.Score(a, b)
	require.True(t, ok)
	assert.True(t, res.Veto)
	assert.Equal(t, []string{"name match: 1.00", "different birth dates"}, res.Reasons())
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
}

func TestScore_DatesCompareFolded(t *testing.T) {
	s := newScorer(t)
	a := genealogy.PersonProfile{ID: 1, PrimaryName: "John Smith", Birth: birth("3 MAR 1850", ""), Death: death("ABT 1920")}
	b := genealogy.PersonProfile{ID: 2, PrimaryName: "John Smith", Birth: birth(" 3 Mar  1850", ""), Death: death("abt 1920")}

	res, ok := s.Score(a, b)
	require.True(t, ok)
	assert.False(t, res.Veto)
	assert.Equal(t, []string{"name match: 1.00", "same birth date", "same death date"}, res.Reasons())

	b.Birth = birth("1850-03-03", "")
	res, ok = s.Score(a, b)
	require.True(t, ok)
	assert.True(t, res.Veto)
}

func TestScore_MissingBirthDateIsNeutral(t *testing.T) {
	s := newScorer(t)
	a := genealogy.PersonProfile{ID: 1, PrimaryName: "John Smith", Birth: birth("1850", "")}
	b := genealogy.PersonProfile{ID: 2, PrimaryName: "John Smith", Birth: birth("", "")}

	res, ok := s.Score(a, b)
	require.True(t, ok)
	assert.False(t, res.Veto)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestScore_VariantNameMatch(t *testing.T) {
	s := newScorer(t)
	a := genealogy.PersonProfile{ID: 1, PrimaryName: "Wm. Smith", AltNames: []string{"William Smith"}}
	b := genealogy.PersonProfile{ID: 2, PrimaryName: "William Smith"}

	res, ok := s.Score(a, b)
	require.True(t, ok)
	assert.Equal(t, []string{"name variant match: 1.00"}, res.Reasons())
	assert.Equal(t, 1.0, res.Confidence)
}

func TestScore_NoNameMatch(t *testing.T) {
	s := newScorer(t)
	a := genealogy.PersonProfile{ID: 1, PrimaryName: "John Smith", Birth: birth("1850", "Boston")}
	b := genealogy.PersonProfile{ID: 2, PrimaryName: "Mary Jones", Birth: birth("1850", "Boston")}

	_, ok := s.Score(a, b)
	assert.False(t, ok)
}

func TestScore_DeathDate(t *testing.T) {
	s := newScorer(t)
	a := genealogy.PersonProfile{ID: 1, PrimaryName: "Anna Berg", Death: death("1901")}
	b := genealogy.PersonProfile{ID: 2, PrimaryName: "Anna Berg", Death: death("1901")}

	res, ok := s.Score(a, b)
	require.True(t, ok)
	assert.Equal(t, []string{"name match: 1.00", "same death date"}, res.Reasons())
}

func TestScore_DissimilarPlaceAddsNoSignal(t *testing.T) {
	s := newScorer(t)
	a := genealogy.PersonProfile{ID: 1, PrimaryName: "Anna Berg", Birth: birth("", "Boston")}
	b := genealogy.PersonProfile{ID: 2, PrimaryName: "Anna Berg", Birth: birth("", "Hamburg")}

	res, ok := s.Score(a, b)
	require.True(t, ok)
	assert.Equal(t, []string{"name match: 1.00"}, res.Reasons())
}

func TestScore_Symmetric(t *testing.T) {
	s := newScorer(t)
	profiles := []genealogy.PersonProfile{
		{ID: 1, PrimaryName: "John Smith", AltNames: []string{"Johnny Smith"}, Birth: birth("1850", "Boston, MA")},
		{ID: 2, PrimaryName: "Jon Smyth", AltNames: []string{"John Smith"}, Birth: birth("1850", "Boston")},
		{ID: 3, PrimaryName: "J. Smith", Birth: birth("1851", "Bostn"), Death: death("1900")},
		{ID: 4, PrimaryName: "Johann Schmidt", AltNames: []string{"John Smith"}, Death: death("1900")},
	}

	for i := range profiles {
		for j := range profiles {
			if i == j {
				continue
			}
			r1, ok1 := s.Score(profiles[i], profiles[j])
			r2, ok2 := s.Score(profiles[j], profiles[i])
			assert.Equal(t, ok1, ok2, "pair %d/%d", i, j)
			assert.InDelta(t, r1.Confidence, r2.Confidence, 1e-12, "pair %d/%d", i, j)
			assert.Equal(t, r1.Veto, r2.Veto, "pair %d/%d", i, j)
		}
	}
}

func TestScore_UnicodeCaseInsensitive(t *testing.T) {
	s := newScorer(t)
	a := genealogy.PersonProfile{ID: 1, PrimaryName: "JOSÉ GARCÍA"}
	b := genealogy.PersonProfile{ID: 2, PrimaryName: "josé garcía"}

	res, ok := s.Score(a, b)
	require.True(t, ok)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestNewScorer_Validation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NameThreshold = 1.5
	_, err := NewScorer(cfg)
	assert.True(t, errors.Is(err, genealogy.ErrInvalid))

	cfg = DefaultConfig()
	cfg.Metric = "soundex"
	_, err = NewScorer(cfg)
	assert.True(t, errors.Is(err, genealogy.ErrInvalid))

	cfg = DefaultConfig()
	cfg.Metric = MetricLevenshtein
	s, err := NewScorer(cfg)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, s.Ratio("Jon Smith", "John Smith"), 1e-9)
}
