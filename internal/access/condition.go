// Package access builds per-user visibility predicates as composable
// condition trees — values combined with explicit And/Or/Not constructors
// rather than string SQL concatenation. Every repository's
// find_for_user(user) merges a caller-supplied Condition with the
// hidden-library and age-restriction conditions via And — never by
// wrapping the caller's query in an outer AND, which silently drops
// caller-supplied filters and is the correctness risk this package exists
// to avoid.
package access

import "strings"

// Condition is a SQL WHERE fragment paired with its positional arguments.
// Fragments use "?" placeholders (SQLite style) and are combined by the
// constructors below rather than through string concatenation by callers.
type Condition struct {
	SQL  string
	Args []interface{}
}

// Empty reports whether c contributes no predicate (an unconditional
// match), letting callers skip the WHERE clause entirely.
func (c Condition) Empty() bool {
	return strings.TrimSpace(c.SQL) == ""
}

// True is the identity Condition for And.
func True() Condition { return Condition{} }

// And combines conditions with SQL AND, skipping empty ones so merging a
// no-op filter never grows the query.
func And(conds ...Condition) Condition {
	return combine("AND", conds)
}

// Or combines conditions with SQL OR.
func Or(conds ...Condition) Condition {
	return combine("OR", conds)
}

// Not negates a single condition. Negating an empty condition yields a
// condition that matches nothing, since "NOT (always true)" is always
// false — callers should not call Not on an Empty() condition.
func Not(c Condition) Condition {
	if c.Empty() {
		return Condition{SQL: "1=0"}
	}
	return Condition{SQL: "NOT (" + c.SQL + ")", Args: c.Args}
}

func combine(op string, conds []Condition) Condition {
	var parts []string
	var args []interface{}
	for _, c := range conds {
		if c.Empty() {
			continue
		}
		parts = append(parts, "("+c.SQL+")")
		args = append(args, c.Args...)
	}
	if len(parts) == 0 {
		return Condition{}
	}
	if len(parts) == 1 {
		return Condition{SQL: parts[0], Args: args}
	}
	return Condition{SQL: strings.Join(parts, " "+op+" "), Args: args}
}

// Raw builds a leaf Condition from a SQL fragment and its args.
func Raw(sql string, args ...interface{}) Condition {
	return Condition{SQL: sql, Args: args}
}

// Render returns "WHERE <sql>" (or "" if c is empty) plus its args, ready
// to append to a base query.
func (c Condition) Render() (string, []interface{}) {
	if c.Empty() {
		return "", nil
	}
	return " WHERE " + c.SQL, c.Args
}

// And further ANDs c with more, in postfix style, for call-site chaining.
func (c Condition) And(more ...Condition) Condition {
	return And(append([]Condition{c}, more...)...)
}
