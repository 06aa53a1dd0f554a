package genealogy

import (
	"regexp"
	"strconv"
)

var reYear = regexp.MustCompile(`\d{4}`)

// Year extracts the first four-digit run of a free-form date, such as the
// 1850 of "abt. 3 Mar 1850".
func Year(date *string) (int, bool) {
	if date == nil {
		return 0, false
	}
	m := reYear.FindString(*date)
	if m == "" {
		return 0, false
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return y, true
}
