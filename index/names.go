package index

import (
	"regexp"
	"strings"
)

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9]+`)

// sanitize reduces a field path or type tag to the identifier-safe
// alphabet used for index names.
func sanitize(s string) string {
	return strings.Trim(invalidNameChars.ReplaceAllString(s, "_"), "_")
}

// Name derives the deterministic index name for a declared field path.
// Plain collections use the sanitized path; shared collections prefix the
// sanitized type tag. This determinism is what lets the reconciler match
// a declared index to a live one without external bookkeeping.
func Name(typeTag, fieldPath string) string {
	if typeTag == "" {
		return sanitize(fieldPath)
	}
	return sanitize(typeTag) + "_" + sanitize(fieldPath)
}

var derivedName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// managed reports whether a live index name belongs to the reconciler's
// naming convention and is therefore subject to orphan pruning. The
// default _id index is never managed. For shared collections a name is
// managed only under a known type-tag prefix.
func managed(name string, typeTags []string) bool {
	if name == "_id_" || !derivedName.MatchString(name) {
		return false
	}
	if typeTags == nil {
		return true
	}
	for _, tag := range typeTags {
		if strings.HasPrefix(name, sanitize(tag)+"_") {
			return true
		}
	}
	return false
}
