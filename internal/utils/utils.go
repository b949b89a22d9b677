package utils

import "strings"

// Allows you to specify /api/trucks* to do a prefix match.
// Effectively, if the last character is a *, it just checks to see if it's a prefix
// If it's a string literal, it does a literal match
func MatchesWithWildcard(valueToEvaluate string, matcher string) bool {
	if matcher == "" {
		return false
	}
	if matcher[len(matcher)-1] == '*' {
		return strings.HasPrefix(valueToEvaluate, matcher[:len(matcher)-1])
	}
	return valueToEvaluate == matcher
}

func SliceHasMatch(matchers []string, value string) bool {
	for _, m := range matchers {
		if MatchesWithWildcard(value, m) {
			return true
		}
	}

	return false
}

func Contains(s []string, val string) bool {
	for _, v := range s {
		if v == val {
			return true
		}
	}

	return false
}
