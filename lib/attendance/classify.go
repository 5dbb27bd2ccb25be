package attendance

import (
	"regexp"
	"strconv"
)

// The portal phrases hints as "Can bunk N hrs", "Attend N hrs" or
// "Exactly at 75%". The checks are ordered and the first match wins;
// phrasing outside this vocabulary classifies as nothing, which is
// expected and not an error.
var (
	canSkipHint     = regexp.MustCompile(`(?i)can\s+.*?(\d+)\s*(?:hrs|classes)?`)
	mustAttendHint  = regexp.MustCompile(`(?i)attend\s+(\d+)\s*(?:hrs|classes)?`)
	atThresholdHint = regexp.MustCompile(`(?i)exactly`)
)

// ClassifyAction derives a signed skip budget from the free-text
// action hint, or nil when the text matches no known pattern.
func ClassifyAction(hint string) *int {
	if groups := canSkipHint.FindStringSubmatch(hint); groups != nil {
		n, err := strconv.Atoi(groups[1])
		if err != nil {
			return nil
		}
		return &n
	}
	if groups := mustAttendHint.FindStringSubmatch(hint); groups != nil {
		n, err := strconv.Atoi(groups[1])
		if err != nil {
			return nil
		}
		n = -n
		return &n
	}
	if atThresholdHint.MatchString(hint) {
		zero := 0
		return &zero
	}
	return nil
}
