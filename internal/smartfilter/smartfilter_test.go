package smartfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mediaSchema = Schema{
	Columns: map[string]ColumnSpec{
		"name":       {Column: "m.name"},
		"genre":      {Column: "m.genre", Nullable: true},
		"page_count": {Column: "m.page_count"},
	},
	Relations: map[string]RelationSpec{
		"series": {
			Table:     "series s",
			Correlate: "s.id = m.series_id",
			Schema: Schema{
				Columns: map[string]ColumnSpec{
					"name": {Column: "s.name"},
				},
			},
		},
	},
}

func TestMarshalUnmarshal_RoundTrip(t *testing.T) {
	f := SmartFilter{
		Joiner: JoinAnd,
		Groups: []Group{
			{Kind: GroupAnd, Items: []Node{
				{Leaf: &Leaf{Field: "name", Op: OpContains, Value: "batman"}},
			}},
		},
	}
	data, err := Marshal(f)
	require.NoError(t, err)

	roundTripped, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, f, roundTripped)
}

func TestCompile_EmptyFilterMatchesEverything(t *testing.T) {
	c, err := Compile(SmartFilter{}, mediaSchema)
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestCompile_Equals(t *testing.T) {
	f := SmartFilter{Groups: []Group{
		{Kind: GroupAnd, Items: []Node{{Leaf: &Leaf{Field: "name", Op: OpEquals, Value: "Batman"}}}},
	}}
	c, err := Compile(f, mediaSchema)
	require.NoError(t, err)
	assert.Equal(t, "(m.name = ?)", c.SQL)
	assert.Equal(t, []interface{}{"Batman"}, c.Args)
}

func TestCompile_UnknownField(t *testing.T) {
	f := SmartFilter{Groups: []Group{
		{Kind: GroupAnd, Items: []Node{{Leaf: &Leaf{Field: "nonexistent", Op: OpEquals, Value: 1}}}},
	}}
	_, err := Compile(f, mediaSchema)
	assert.Error(t, err)
}

func TestCompile_UnknownOp(t *testing.T) {
	f := SmartFilter{Groups: []Group{
		{Kind: GroupAnd, Items: []Node{{Leaf: &Leaf{Field: "name", Op: Op("Bogus"), Value: 1}}}},
	}}
	_, err := Compile(f, mediaSchema)
	assert.Error(t, err)
}

func TestCompile_ExcludesNullableIncludesNulls(t *testing.T) {
	f := SmartFilter{Groups: []Group{
		{Kind: GroupAnd, Items: []Node{{Leaf: &Leaf{Field: "genre", Op: OpExcludes, Value: "Horror"}}}},
	}}
	c, err := Compile(f, mediaSchema)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "m.genre IS NULL")
	assert.Contains(t, c.SQL, "m.genre NOT LIKE ?")
}

func TestCompile_NoneNullableIncludesNulls(t *testing.T) {
	f := SmartFilter{Groups: []Group{
		{Kind: GroupAnd, Items: []Node{{Leaf: &Leaf{Field: "genre", Op: OpNone, Values: []interface{}{"Horror", "Romance"}}}}},
	}}
	c, err := Compile(f, mediaSchema)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "m.genre IS NULL")
	assert.Contains(t, c.SQL, "m.genre NOT IN (?, ?)")
}

func TestCompile_AnyWithNoValuesMatchesNothing(t *testing.T) {
	f := SmartFilter{Groups: []Group{
		{Kind: GroupAnd, Items: []Node{{Leaf: &Leaf{Field: "name", Op: OpAny, Values: nil}}}},
	}}
	c, err := Compile(f, mediaSchema)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "1=0")
}

func TestCompile_NoneWithNoValuesMatchesEverything(t *testing.T) {
	f := SmartFilter{Groups: []Group{
		{Kind: GroupAnd, Items: []Node{{Leaf: &Leaf{Field: "genre", Op: OpNone, Values: nil}}}},
	}}
	c, err := Compile(f, mediaSchema)
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestCompile_RangeInclusive(t *testing.T) {
	f := SmartFilter{Groups: []Group{
		{Kind: GroupAnd, Items: []Node{{Leaf: &Leaf{Field: "page_count", Op: OpRange, RangeFrom: 10, RangeTo: 20, RangeInclusive: true}}}},
	}}
	c, err := Compile(f, mediaSchema)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "m.page_count >= ?")
	assert.Contains(t, c.SQL, "m.page_count <= ?")
}

func TestCompile_RangeExclusive(t *testing.T) {
	f := SmartFilter{Groups: []Group{
		{Kind: GroupAnd, Items: []Node{{Leaf: &Leaf{Field: "page_count", Op: OpRange, RangeFrom: 10, RangeTo: 20, RangeInclusive: false}}}},
	}}
	c, err := Compile(f, mediaSchema)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "m.page_count > ?")
	assert.Contains(t, c.SQL, "m.page_count < ?")
}

func TestCompile_GroupNot(t *testing.T) {
	f := SmartFilter{Groups: []Group{
		{Kind: GroupNot, Items: []Node{{Leaf: &Leaf{Field: "name", Op: OpEquals, Value: "Batman"}}}},
	}}
	c, err := Compile(f, mediaSchema)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "NOT (")
	assert.Contains(t, c.SQL, "m.name = ?")
}

func TestCompile_GroupOr(t *testing.T) {
	f := SmartFilter{Groups: []Group{
		{Kind: GroupOr, Items: []Node{
			{Leaf: &Leaf{Field: "name", Op: OpEquals, Value: "Batman"}},
			{Leaf: &Leaf{Field: "name", Op: OpEquals, Value: "Superman"}},
		}},
	}}
	c, err := Compile(f, mediaSchema)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "OR")
}

func TestCompile_TopLevelJoinerOr(t *testing.T) {
	f := SmartFilter{
		Joiner: JoinOr,
		Groups: []Group{
			{Kind: GroupAnd, Items: []Node{{Leaf: &Leaf{Field: "name", Op: OpEquals, Value: "Batman"}}}},
			{Kind: GroupAnd, Items: []Node{{Leaf: &Leaf{Field: "name", Op: OpEquals, Value: "Superman"}}}},
		},
	}
	c, err := Compile(f, mediaSchema)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, ") OR (")
}

func TestCompile_NestedRelation(t *testing.T) {
	f := SmartFilter{Groups: []Group{
		{Kind: GroupAnd, Items: []Node{{Leaf: &Leaf{Relation: &Relation{
			Name: "series",
			Filter: SmartFilter{Groups: []Group{
				{Kind: GroupAnd, Items: []Node{{Leaf: &Leaf{Field: "name", Op: OpEquals, Value: "Strange Tales"}}}},
			}},
		}}}}},
	}}
	c, err := Compile(f, mediaSchema)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "EXISTS (SELECT 1 FROM series s WHERE")
	assert.Contains(t, c.SQL, "s.id = m.series_id")
	assert.Contains(t, c.SQL, "s.name = ?")
	assert.Equal(t, []interface{}{"Strange Tales"}, c.Args)
}

func TestCompile_UnknownRelation(t *testing.T) {
	f := SmartFilter{Groups: []Group{
		{Kind: GroupAnd, Items: []Node{{Leaf: &Leaf{Relation: &Relation{Name: "nonexistent"}}}}},
	}}
	_, err := Compile(f, mediaSchema)
	assert.Error(t, err)
}

func TestCompile_NestedGroupNode(t *testing.T) {
	f := SmartFilter{Groups: []Group{
		{Kind: GroupAnd, Items: []Node{
			{Group: &Group{Kind: GroupOr, Items: []Node{
				{Leaf: &Leaf{Field: "name", Op: OpEquals, Value: "Batman"}},
				{Leaf: &Leaf{Field: "name", Op: OpEquals, Value: "Superman"}},
			}}},
		}},
	}}
	c, err := Compile(f, mediaSchema)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "OR")
}
