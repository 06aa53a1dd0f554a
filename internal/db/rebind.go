package db

import "regexp"

var rePositional = regexp.MustCompile(`\$(\d+)`)

// RebindNumbered rewrites $N placeholders to ?N for drivers such as SQLite.
// Statements in this package never contain a literal '$'.
func RebindNumbered(query string) string {
	return rePositional.ReplaceAllString(query, "?$1")
}
