package db

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LikePattern returns a pattern matching s anywhere in a value, with LIKE
// wildcards in s taken literally.
func LikePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
