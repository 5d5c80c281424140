// Package duration parses the ISO-8601 duration subset used by journey
// builders for delay and wait-timeout fields.
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var isoRe = regexp.MustCompile(`(?i)^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// Parse converts an ISO-8601 duration of the form PnDTnHnMnS into a
// time.Duration. The empty string parses as zero. Week, month and year
// designators are not supported.
func Parse(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	m := isoRe.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "" && m[4] == "") {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", s)
	}

	days := atoi(m[1])
	hours := atoi(m[2])
	minutes := atoi(m[3])
	seconds := atoi(m[4])

	total := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second

	return total, nil
}

func atoi(s string) int {
	if s == "" {
		return 0
	}

	n, _ := strconv.Atoi(s)

	return n
}
