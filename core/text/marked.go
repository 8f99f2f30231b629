package text

import "strings"

// markedTerm is the four-letter divine name in Hebrew script, kept as raw
// UTF-8 bytes.
const markedTerm = "\xd7\x99\xd7\x94\xd7\x95\xd7\x94"

// ContainsMarkedTerm reports whether any unit contains the marked term.
func ContainsMarkedTerm(units []string) bool {
	for _, unit := range units {
		if strings.Contains(unit, markedTerm) {
			return true
		}
	}
	return false
}
