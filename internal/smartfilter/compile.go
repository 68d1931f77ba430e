package smartfilter

import (
	"fmt"

	"github.com/stump/stump/internal/access"
)

// ColumnSpec names the SQL column a field compiles to, and whether it's
// nullable — nullability changes how None/Excludes behave per the
// NULL-aware negation rules; Equals/Not ignore it.
type ColumnSpec struct {
	Column   string
	Nullable bool
}

// RelationSpec describes how to traverse into a related entity: the
// correlated subquery table/alias, the join predicate tying it back to
// the outer row, and that related entity's own Schema for recursive
// compilation (e.g. Media -> Series -> Library).
type RelationSpec struct {
	Table     string // "series s", "libraries l"
	Correlate string // "s.id = m.series_id"
	Schema    Schema
}

// Schema maps a SmartFilter's field names and relation names to their
// compiled SQL shape. One Schema exists per entity (Media, Series,
// Library).
type Schema struct {
	Columns   map[string]ColumnSpec
	Relations map[string]RelationSpec
}

// Compile converts a SmartFilter into an access.Condition ready to merge
// with the access-control composer's output via access.And — never
// appended as an outer wrapper, per the package-level convention shared
// with internal/access.
func Compile(f SmartFilter, schema Schema) (access.Condition, error) {
	if len(f.Groups) == 0 {
		return access.True(), nil
	}
	compiled := make([]access.Condition, 0, len(f.Groups))
	for _, g := range f.Groups {
		c, err := compileGroup(g, schema)
		if err != nil {
			return access.Condition{}, err
		}
		compiled = append(compiled, c)
	}
	if len(compiled) == 1 {
		return compiled[0], nil
	}
	if f.Joiner == JoinOr {
		return access.Or(compiled...), nil
	}
	return access.And(compiled...), nil
}

func compileGroup(g Group, schema Schema) (access.Condition, error) {
	items := make([]access.Condition, 0, len(g.Items))
	for _, n := range g.Items {
		c, err := compileNode(n, schema)
		if err != nil {
			return access.Condition{}, err
		}
		items = append(items, c)
	}
	switch g.Kind {
	case GroupOr:
		return access.Or(items...), nil
	case GroupNot:
		return access.Not(access.And(items...)), nil
	default:
		return access.And(items...), nil
	}
}

func compileNode(n Node, schema Schema) (access.Condition, error) {
	switch {
	case n.Leaf != nil:
		return compileLeaf(*n.Leaf, schema)
	case n.Group != nil:
		return compileGroup(*n.Group, schema)
	default:
		return access.True(), nil
	}
}

func compileLeaf(leaf Leaf, schema Schema) (access.Condition, error) {
	if leaf.Relation != nil {
		return compileRelation(leaf.Relation, schema)
	}

	spec, ok := schema.Columns[leaf.Field]
	if !ok {
		return access.Condition{}, fmt.Errorf("smartfilter: unknown field %q", leaf.Field)
	}
	col := spec.Column

	switch leaf.Op {
	case OpEquals:
		return access.Raw(col+" = ?", leaf.Value), nil
	case OpNot:
		// Plain inequality — NOT implied to also match NULL; use
		// Excludes/None for NULL-aware negation.
		return access.Raw(col+" != ?", leaf.Value), nil
	case OpContains:
		return access.Raw(col+" LIKE ?", likePattern(leaf.Value)), nil
	case OpExcludes:
		cond := access.Raw(col+" NOT LIKE ?", likePattern(leaf.Value))
		if spec.Nullable {
			return access.Or(access.Raw(col+" IS NULL"), cond), nil
		}
		return cond, nil
	case OpAny:
		return inCondition(col, leaf.Values, false), nil
	case OpNone:
		cond := inCondition(col, leaf.Values, true)
		if spec.Nullable && !cond.Empty() {
			return access.Or(access.Raw(col+" IS NULL"), cond), nil
		}
		return cond, nil
	case OpGt:
		return access.Raw(col+" > ?", leaf.Value), nil
	case OpGte:
		return access.Raw(col+" >= ?", leaf.Value), nil
	case OpLt:
		return access.Raw(col+" < ?", leaf.Value), nil
	case OpLte:
		return access.Raw(col+" <= ?", leaf.Value), nil
	case OpRange:
		if leaf.RangeInclusive {
			return access.And(
				access.Raw(col+" >= ?", leaf.RangeFrom),
				access.Raw(col+" <= ?", leaf.RangeTo),
			), nil
		}
		return access.And(
			access.Raw(col+" > ?", leaf.RangeFrom),
			access.Raw(col+" < ?", leaf.RangeTo),
		), nil
	default:
		return access.Condition{}, fmt.Errorf("smartfilter: unknown op %q", leaf.Op)
	}
}

func compileRelation(rel *Relation, schema Schema) (access.Condition, error) {
	spec, ok := schema.Relations[rel.Name]
	if !ok {
		return access.Condition{}, fmt.Errorf("smartfilter: unknown relation %q", rel.Name)
	}
	inner, err := Compile(rel.Filter, spec.Schema)
	if err != nil {
		return access.Condition{}, err
	}
	combined := access.And(access.Raw(spec.Correlate), inner)
	sql, args := combined.Render()
	return access.Raw("EXISTS (SELECT 1 FROM "+spec.Table+sql+")", args...), nil
}

func likePattern(v interface{}) string {
	s, _ := v.(string)
	return "%" + s + "%"
}

func inCondition(col string, values []interface{}, negate bool) access.Condition {
	if len(values) == 0 {
		if negate {
			return access.True()
		}
		return access.Raw("1=0")
	}
	placeholders := ""
	for i := range values {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
	}
	op := "IN"
	if negate {
		op = "NOT IN"
	}
	return access.Raw(col+" "+op+" ("+placeholders+")", values...)
}
