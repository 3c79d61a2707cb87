package session

import "strings"

// Validator reports whether an event of the given type and CI names is the one
// a configuration's `type` and `ci` fields ask for.
type Validator func(typ, ci string) bool

// IsValidCheck accepts configurations of type typ whose ci field matches one
// of names, case-insensitively. ci is expected in lower case.
func IsValidCheck(names []string, typ string) Validator {
	return func(configType, ci string) bool {
		if configType != typ {
			return false
		}
		for _, n := range names {
			if n != "" && strings.ToLower(n) == ci {
				return true
			}
		}
		return false
	}
}
