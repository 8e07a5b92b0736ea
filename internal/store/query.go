package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Query is a small boolean expression tree over field predicates, matching
// the filter language named in spec §6: `=`, `&&`, `||`, `~` (substring),
// with escaping. Query.String() renders the same syntax PocketBase's REST
// API accepts as its `filter` query parameter, so a Query built for the
// in-memory test store serializes directly onto the wire for the real
// client with no translation layer.
type Query struct {
	op    queryOp
	field string
	value any
	left  *Query
	right *Query
}

type queryOp int

const (
	opNone queryOp = iota
	opEq
	opContains
	opAnd
	opOr
)

// Eq builds a field = value predicate.
func Eq(field string, value any) Query {
	return Query{op: opEq, field: field, value: value}
}

// Contains builds a field ~ substring predicate.
func Contains(field string, substr string) Query {
	return Query{op: opContains, field: field, value: substr}
}

// And combines two queries with &&.
func And(a, b Query) Query {
	return Query{op: opAnd, left: &a, right: &b}
}

// Or combines two queries with ||.
func Or(a, b Query) Query {
	return Query{op: opOr, left: &a, right: &b}
}

// IsZero reports whether q is the empty query (matches everything).
func (q Query) IsZero() bool {
	return q.op == opNone
}

// String renders the query using the spec's filter syntax.
func (q Query) String() string {
	switch q.op {
	case opNone:
		return ""
	case opEq:
		return fmt.Sprintf("%s = %s", q.field, literal(q.value))
	case opContains:
		return fmt.Sprintf("%s ~ %s", q.field, literal(q.value))
	case opAnd:
		return fmt.Sprintf("(%s && %s)", q.left.String(), q.right.String())
	case opOr:
		return fmt.Sprintf("(%s || %s)", q.left.String(), q.right.String())
	default:
		return ""
	}
}

// literal escapes a value for inclusion in the filter string. Strings are
// single-quoted with internal quotes escaped; other scalar types use their
// natural representation.
func literal(v any) string {
	switch val := v.(type) {
	case string:
		escaped := strings.ReplaceAll(val, `'`, `\'`)
		return "'" + escaped + "'"
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("'%v'", val)
	}
}

// Match evaluates q against an in-memory record. Used by the in-memory test
// store; the PocketBase-backed store instead sends q.String() as the
// `filter` query parameter and lets the server evaluate it.
func (q Query) Match(rec Record) bool {
	switch q.op {
	case opNone:
		return true
	case opEq:
		return fmt.Sprintf("%v", rec[q.field]) == fmt.Sprintf("%v", q.value)
	case opContains:
		haystack := fmt.Sprintf("%v", rec[q.field])
		needle := fmt.Sprintf("%v", q.value)
		return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
	case opAnd:
		return q.left.Match(rec) && q.right.Match(rec)
	case opOr:
		return q.left.Match(rec) || q.right.Match(rec)
	default:
		return false
	}
}
