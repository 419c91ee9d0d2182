package scim

import "strings"

// Op is a SCIM filter comparison operator (RFC 7644 §3.4.2.2, restricted
// to the single-comparison subset this bridge accepts).
type Op string

const (
	OpEqual              Op = "eq"
	OpNotEqual           Op = "ne"
	OpContains           Op = "co"
	OpStartsWith         Op = "sw"
	OpEndsWith           Op = "ew"
	OpPresent            Op = "pr"
	OpGreaterThan        Op = "gt"
	OpGreaterThanOrEqual Op = "ge"
	OpLessThan           Op = "lt"
	OpLessThanOrEqual    Op = "le"
)

// Filter is a single parsed binary comparison: Column op Value, where
// Column is already resolved to the cache column it addresses.
type Filter struct {
	Attr   string // the SCIM attribute name as written, e.g. "userName"
	Column string // the cache column it maps to, e.g. "sam_account_name"
	Op     Op
	Value  string
}

// attrColumns is the fixed, closed set of SCIM attributes this bridge
// can filter on. Anything else is unsupported.
var attrColumns = map[string]string{
	"id":         "id",
	"externalid": "id", // externalId aliases the primary key
	"username":   "sam_account_name",
}

var validOps = map[string]bool{
	"eq": true, "ne": true, "co": true, "sw": true, "ew": true,
	"pr": true, "gt": true, "ge": true, "lt": true, "le": true,
}

// ParseFilter parses the supported subset of a SCIM filter expression:
// `<attr> <op> "<value>"`, a single binary comparison with no logical
// connectives, grouping, or multi-valued path expressions. Anything
// outside that grammar, or any attribute not mapped to a cache column,
// reports ok=false so the caller falls back to an unfiltered page.
func ParseFilter(expr string) (f Filter, ok bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, false
	}

	fields := splitFilterTokens(expr)
	if len(fields) != 3 {
		return Filter{}, false
	}

	attr := strings.ToLower(fields[0])
	op := Op(strings.ToLower(fields[1]))
	if !validOps[string(op)] {
		return Filter{}, false
	}

	column, known := attrColumns[attr]
	if !known {
		return Filter{}, false
	}

	value, ok := unquote(fields[2])
	if !ok {
		return Filter{}, false
	}

	return Filter{Attr: fields[0], Column: column, Op: op, Value: value}, true
}

// splitFilterTokens splits on runs of whitespace into at most 3 fields:
// attribute, operator, and the remainder (expected to be a quoted
// value). This tolerates spaces inside the quoted value itself.
func splitFilterTokens(expr string) []string {
	first := strings.IndexAny(expr, " \t")
	if first < 0 {
		return []string{expr}
	}
	attr := expr[:first]
	rest := strings.TrimLeft(expr[first:], " \t")

	second := strings.IndexAny(rest, " \t")
	if second < 0 {
		return []string{attr, rest}
	}
	op := rest[:second]
	value := strings.TrimLeft(rest[second:], " \t")
	return []string{attr, op, value}
}

// unquote strips a leading and trailing double quote from s with no
// escape processing. Values without a matching pair of quotes are
// rejected. See the open question in DESIGN.md: escaped quotes inside
// the value are not supported, by design, pending a real test case.
func unquote(s string) (string, bool) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", false
	}
	return s[1 : len(s)-1], true
}
