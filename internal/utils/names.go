package utils

import "regexp"

// Display names and channel names accept a restricted character set: whitespace
// and invisible unicode separators are replaced, and the result is capped at 32
// runes.
var nameFilter = regexp.MustCompile("[\\s​-‏⁠]")

const maxNameLen = 32

// SpacedName normalizes a user-facing name, collapsing illegal characters to spaces.
func SpacedName(value string) string {
	return trimName(nameFilter.ReplaceAllString(value, " "))
}

// DashedName normalizes a name that must not contain spaces (channel names).
func DashedName(value string) string {
	return trimName(nameFilter.ReplaceAllString(value, "-"))
}

func trimName(value string) string {
	runes := []rune(value)
	if len(runes) <= maxNameLen {
		return value
	}
	return string(runes[:maxNameLen])
}
