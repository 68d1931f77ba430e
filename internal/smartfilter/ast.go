// Package smartfilter implements a user-constructed predicate AST: a
// persisted SmartFilter compiles to an access.Condition,
// letting a saved SmartList run the exact same query path as any other
// repository read (the find_for_user merges it in via And, never
// by wrapping it).
package smartfilter

import "encoding/json"

// Joiner combines a SmartFilter's top-level groups.
type Joiner string

const (
	JoinAnd Joiner = "AND"
	JoinOr  Joiner = "OR"
)

// GroupKind tags a FilterGroup's combinator.
type GroupKind string

const (
	GroupAnd GroupKind = "AND"
	GroupOr  GroupKind = "OR"
	GroupNot GroupKind = "NOT"
)

// Op is the closed set of leaf predicates a Filter supports.
type Op string

const (
	OpEquals   Op = "Equals"
	OpNot      Op = "Not"
	OpContains Op = "Contains"
	OpExcludes Op = "Excludes"
	OpAny      Op = "Any"
	OpNone     Op = "None"
	OpGt       Op = "Gt"
	OpGte      Op = "Gte"
	OpLt       Op = "Lt"
	OpLte      Op = "Lte"
	OpRange    Op = "Range"
)

// Leaf is one field-level predicate, or a relation traversal into a
// nested entity's own SmartFilter (e.g. MediaSmartFilter::Series(...)).
// Exactly one of (Field+Op) or Relation is populated.
type Leaf struct {
	Field          string      `json:"field,omitempty"`
	Op             Op          `json:"op,omitempty"`
	Value          interface{} `json:"value,omitempty"`
	Values         []interface{} `json:"values,omitempty"`
	RangeFrom      interface{} `json:"range_from,omitempty"`
	RangeTo        interface{} `json:"range_to,omitempty"`
	RangeInclusive bool        `json:"range_inclusive,omitempty"`
	Relation       *Relation   `json:"relation,omitempty"`
}

// Relation names which related entity to traverse into (as registered in
// a Schema's Relations map) and the filter to apply on the other side of
// that join.
type Relation struct {
	Name   string     `json:"name"`
	Filter SmartFilter `json:"filter"`
}

// Node is either a single Leaf or a nested Group — SmartFilter trees can
// nest groups within groups.
type Node struct {
	Leaf  *Leaf  `json:"leaf,omitempty"`
	Group *Group `json:"group,omitempty"`
}

// Group combines its Items with its Kind's combinator (Not treats the
// group as a negated AND-of-items, mirroring FilterGroup::Not([E])).
type Group struct {
	Kind  GroupKind `json:"kind"`
	Items []Node    `json:"items"`
}

// SmartFilter is the persisted predicate tree for one entity type.
type SmartFilter struct {
	Groups []Group `json:"groups"`
	Joiner Joiner  `json:"joiner"`
}

// Marshal/Unmarshal round-trip a SmartFilter to the JSON blob
// SmartList.FilterJSON persists (the round-trip law, extended to
// this supplemented entity).
func Marshal(f SmartFilter) ([]byte, error) { return json.Marshal(f) }

func Unmarshal(data []byte) (SmartFilter, error) {
	var f SmartFilter
	err := json.Unmarshal(data, &f)
	return f, err
}
