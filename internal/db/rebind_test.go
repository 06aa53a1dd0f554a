package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebindNumbered(t *testing.T) {
	assert.Equal(t,
		"UPDATE relationships SET source_person_id = ?1 WHERE source_person_id = ?2 OR target_person_id = ?1",
		RebindNumbered("UPDATE relationships SET source_person_id = $1 WHERE source_person_id = $2 OR target_person_id = $1"),
	)
	assert.Equal(t, "VALUES (?12, ?13)", RebindNumbered("VALUES ($12, $13)"))
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%John%", LikePattern("John"))
	assert.Equal(t, `%100\%\_a\\b%`, LikePattern(`100%_a\b`))
}
