package extraction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
  "people": [{"primary_name": "John Smith", "name_variants": ["Jon Smith"], "confidence": 0.9}],
  "events": [{"person_name": "John Smith", "event_type": "birth", "date": "1850-03-02", "place": "Boston", "confidence": 0.8}],
  "relationships": [{"person1": "John Smith", "person2": "Mary Smith", "relationship_type": "parent", "confidence": 0.7}]
}`

func TestParse_PlainJSON(t *testing.T) {
	r, err := Parse(sample)
	require.NoError(t, err)
	require.Len(t, r.People, 1)
	assert.Equal(t, "John Smith", r.People[0].PrimaryName)
	assert.Equal(t, []string{"Jon Smith"}, r.People[0].NameVariants)
	require.Len(t, r.Events, 1)
	assert.Equal(t, "1850-03-02", *r.Events[0].Date)
	require.Len(t, r.Relationships, 1)
	assert.Equal(t, "Mary Smith", r.Relationships[0].Person2)
}

func TestParse_DoubleEncoded(t *testing.T) {
	encoded, err := json.Marshal(sample)
	require.NoError(t, err)

	r, err := Parse(string(encoded))
	require.NoError(t, err)
	assert.Len(t, r.People, 1)
}

func TestParse_CodeFenceAndTrailingComma(t *testing.T) {
	input := "```json\n{\"people\": [{\"primary_name\": \"Ann Lee\", \"name_variants\": [], \"confidence\": 0.5,}], \"events\": [], \"relationships\": []}\n```"

	r, err := Parse(input)
	require.NoError(t, err)
	require.Len(t, r.People, 1)
	assert.Equal(t, "Ann Lee", r.People[0].PrimaryName)
}

func TestParse_RejectsOutOfRangeConfidence(t *testing.T) {
	_, err := Parse(`{"people": [{"primary_name": "Ann", "name_variants": [], "confidence": 1.5}], "events": [], "relationships": []}`)
	assert.Error(t, err)
}

func TestParse_RejectsMissingPersonName(t *testing.T) {
	_, err := Parse(`{"people": [], "events": [{"person_name": "", "event_type": "birth", "confidence": 0.5}], "relationships": []}`)
	assert.Error(t, err)
}

func TestSchema_DescribesResult(t *testing.T) {
	s := Schema()
	require.NotNil(t, s)

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"people"`)
	assert.Contains(t, string(out), `"primary_name"`)
	assert.Contains(t, string(out), `"relationship_type"`)
}

func TestFingerprint(t *testing.T) {
	a, err := Parse(`{"people":[{"primary_name":"Ann Lee","name_variants":[],"confidence":0.9}],"events":[],"relationships":[]}`)
	require.NoError(t, err)
	b, err := Parse("```json\n{\"people\": [{\"primary_name\": \"Ann Lee\", \"name_variants\": [], \"confidence\": 0.9}], \"events\": [], \"relationships\": []}\n```")
	require.NoError(t, err)

	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)

	a.People[0].Confidence = 0.8
	fc, err := a.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)
}
