package adtool

import "strings"

// Classification is the HTTP status and SCIM scimType a directory-tool
// failure maps to, with the original stderr preserved verbatim as the
// detail operators see in the Error envelope.
type Classification struct {
	HTTPStatus int
	ScimType   string
	Detail     string
}

// Classify maps stderr to a Classification. Substrings are matched in
// the fixed priority order below against the lowercased stderr; the
// first match wins. Detail is always the original, non-lowercased
// string.
func Classify(stderr string) Classification {
	lower := strings.ToLower(stderr)

	switch {
	case strings.Contains(lower, "already exists"), strings.Contains(lower, "already in use"):
		return Classification{HTTPStatus: 409, ScimType: "uniqueness", Detail: stderr}

	case strings.Contains(lower, "cannot find an object with identity"),
		strings.Contains(lower, "not found"),
		strings.Contains(lower, "no such object"),
		strings.Contains(lower, "nosuchobject"):
		return Classification{HTTPStatus: 404, ScimType: "noTarget", Detail: stderr}

	case strings.Contains(lower, "password") &&
		(strings.Contains(lower, "complexity") || strings.Contains(lower, "length") || strings.Contains(lower, "requirement")):
		return Classification{HTTPStatus: 400, ScimType: "invalidValue", Detail: stderr}

	case strings.Contains(lower, "access") && strings.Contains(lower, "denied"):
		return Classification{HTTPStatus: 403, Detail: stderr}

	case strings.Contains(lower, "invalid"), strings.Contains(lower, "bad request"):
		return Classification{HTTPStatus: 400, ScimType: "invalidValue", Detail: stderr}

	default:
		return Classification{HTTPStatus: 500, Detail: stderr}
	}
}

// IsAlreadyGone reports whether stderr describes a target that no
// longer exists in AD, the signal the request processor treats as a
// successful delete rather than a failure.
func IsAlreadyGone(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "cannot find") || strings.Contains(lower, "not found")
}
