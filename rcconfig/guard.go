package rcconfig

import "strings"

// parseSectionGuard parses the inside of a "[...]" section header:
// comma-separated disjuncts, each itself a '&'-joined conjunction of
// literals, optionally negated with a leading '!' (spec §6).
func parseSectionGuard(body string) ([][]string, error) {
	var disjuncts [][]string
	for _, d := range strings.Split(body, ",") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		disjuncts = append(disjuncts, strings.Split(d, "&"))
	}
	return disjuncts, nil
}

// sectionActive reports whether any disjunct's literals all match the
// active tag set (an empty '!'-negated literal matches when the tag is
// ABSENT from the set).
func sectionActive(disjuncts [][]string, tags map[string]bool) bool {
	if len(disjuncts) == 0 {
		return true
	}
	for _, conj := range disjuncts {
		if conjunctionMatches(conj, tags) {
			return true
		}
	}
	return false
}

func conjunctionMatches(literals []string, tags map[string]bool) bool {
	for _, lit := range literals {
		lit = strings.TrimSpace(lit)
		if lit == "" {
			continue
		}
		if strings.HasPrefix(lit, "!") {
			if tags[strings.TrimPrefix(lit, "!")] {
				return false
			}
			continue
		}
		if !tags[lit] {
			return false
		}
	}
	return true
}
