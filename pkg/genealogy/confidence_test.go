package genealogy

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfidence_Range(t *testing.T) {
	for _, v := range []float64{0, 0.5, 1} {
		c, err := NewConfidence(v)
		require.NoError(t, err)
		assert.True(t, c.Valid)
		assert.Equal(t, v, c.Float64)
	}

	for _, v := range []float64{-0.01, 1.01} {
		_, err := NewConfidence(v)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalid))
	}
}

func TestConfidence_AbsentIsNotZero(t *testing.T) {
	var absent Confidence
	zero := MustConfidence(0)

	assert.NotEqual(t, absent, zero)

	v, err := absent.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = zero.Value()
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestConfidence_Scan(t *testing.T) {
	var c Confidence
	require.NoError(t, c.Scan(nil))
	assert.False(t, c.Valid)

	require.NoError(t, c.Scan(0.7))
	assert.Equal(t, MustConfidence(0.7), c)

	require.NoError(t, c.Scan(int64(1)))
	assert.Equal(t, MustConfidence(1), c)

	require.NoError(t, c.Scan([]byte("0.25")))
	assert.Equal(t, MustConfidence(0.25), c)

	assert.Error(t, c.Scan(true))
}

func TestConfidence_JSON(t *testing.T) {
	type wrapper struct {
		C Confidence `json:"c"`
	}

	out, err := json.Marshal(wrapper{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"c":null}`, string(out))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"c":0.9}`), &w))
	assert.Equal(t, MustConfidence(0.9), w.C)

	err = json.Unmarshal([]byte(`{"c":2}`), &w)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestNewPerson_Validation(t *testing.T) {
	_, err := NewPerson("   ", Confidence{})
	assert.True(t, errors.Is(err, ErrInvalid))

	_, err = NewPerson("Ann", Confidence{Float64: 3, Valid: true})
	assert.True(t, errors.Is(err, ErrInvalid))

	p, err := NewPerson(" Ann Lee ", MustConfidence(0.8))
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", p.PrimaryName)
}

func TestErrors_Is(t *testing.T) {
	assert.True(t, errors.Is(NewNotFoundError("person", 4), ErrNotFound))
	assert.True(t, errors.Is(NewConflictError("merge", errors.New("40001")), ErrConflict))
	assert.True(t, IsRetryable(NewConflictError("merge", nil)))
	assert.False(t, IsRetryable(NewStorageError("merge", errors.New("disk"))))
	assert.EqualError(t, NewNotFoundError("person", 4), "person 4 not found")
}
