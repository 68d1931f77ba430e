package access

import (
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/stump/stump/internal/models"
)

func TestCondition_Empty(t *testing.T) {
	assert.True(t, True().Empty())
	assert.False(t, Raw("x = ?", 1).Empty())
}

func TestAnd_SkipsEmptyConditions(t *testing.T) {
	c := And(True(), Raw("a = ?", 1), True(), Raw("b = ?", 2))
	assert.Equal(t, "(a = ?) AND (b = ?)", c.SQL)
	assert.Equal(t, []interface{}{1, 2}, c.Args)
}

func TestAnd_AllEmptyYieldsEmpty(t *testing.T) {
	c := And(True(), True())
	assert.True(t, c.Empty())
}

func TestOr_Combines(t *testing.T) {
	c := Or(Raw("a = ?", 1), Raw("b = ?", 2))
	assert.Equal(t, "(a = ?) OR (b = ?)", c.SQL)
}

func TestNot_NegatesCondition(t *testing.T) {
	c := Not(Raw("a = ?", 1))
	assert.Equal(t, "NOT (a = ?)", c.SQL)
	assert.Equal(t, []interface{}{1}, c.Args)
}

func TestNot_OfEmptyMatchesNothing(t *testing.T) {
	c := Not(True())
	assert.Equal(t, "1=0", c.SQL)
}

func TestRender(t *testing.T) {
	sql, args := Raw("a = ?", 1).Render()
	assert.Equal(t, " WHERE a = ?", sql)
	assert.Equal(t, []interface{}{1}, args)

	sql, args = True().Render()
	assert.Equal(t, "", sql)
	assert.Nil(t, args)
}

func TestCondition_AndChaining(t *testing.T) {
	c := Raw("a = ?", 1).And(Raw("b = ?", 2))
	assert.Equal(t, "(a = ?) AND (b = ?)", c.SQL)
}

func TestForUser_NilUserMatchesNothing(t *testing.T) {
	c := ForUser(nil, "library_id", "age_rating", "series_age_rating")
	assert.Equal(t, "1=0", c.SQL)
}

func TestForUser_ServerOwnerSeesEverything(t *testing.T) {
	u := &models.User{IsServerOwner: true}
	c := ForUser(u, "library_id", "age_rating", "series_age_rating")
	assert.True(t, c.Empty())
}

func TestForUser_HiddenLibraries(t *testing.T) {
	id1 := uuid.New()
	id2 := uuid.New()
	u := &models.User{HiddenLibraries: []uuid.UUID{id1, id2}}
	c := ForUser(u, "library_id", "age_rating", "series_age_rating")
	assert.Contains(t, c.SQL, "library_id NOT IN (?, ?)")
	assert.Equal(t, []interface{}{id1.String(), id2.String()}, c.Args)
}

func TestForUser_NoRestrictions(t *testing.T) {
	u := &models.User{}
	c := ForUser(u, "library_id", "age_rating", "series_age_rating")
	assert.True(t, c.Empty())
}

func TestForUser_AgeRestrictionExcludesUnset(t *testing.T) {
	u := &models.User{AgeRestriction: &models.AgeRestriction{Age: 13, RestrictOnUnset: true}}
	c := ForUser(u, "library_id", "age_rating", "series_age_rating")
	assert.Contains(t, c.SQL, "age_rating IS NOT NULL AND age_rating <= ?")
	assert.Contains(t, c.SQL, "(age_rating IS NULL) AND (series_age_rating IS NOT NULL AND series_age_rating <= ?)")
	assert.Equal(t, []interface{}{13, 13}, c.Args)
}

func TestForUser_AgeRestrictionAllowsUnset(t *testing.T) {
	u := &models.User{AgeRestriction: &models.AgeRestriction{Age: 13, RestrictOnUnset: false}}
	c := ForUser(u, "library_id", "age_rating", "series_age_rating")
	assert.Contains(t, c.SQL, "age_rating IS NOT NULL AND age_rating <= ?")
	assert.Contains(t, c.SQL, "series_age_rating IS NULL")
	assert.Contains(t, c.SQL, "series_age_rating IS NOT NULL AND series_age_rating <= ?")
	assert.Equal(t, []interface{}{13, 13}, c.Args)
}

// TestForUser_AgeRestrictionFallsBackToSeriesRating runs the emitted
// condition against an in-memory table of (own, series) rating pairs,
// covering the case the single-column version never handled: a media row
// with no rating of its own defers to its series' rating before
// RestrictOnUnset decides the remaining unset/unset case.
func TestForUser_AgeRestrictionFallsBackToSeriesRating(t *testing.T) {
	five, fiveHundred, ten := 5, 500, 10

	restrictOnUnset := &models.User{AgeRestriction: &models.AgeRestriction{Age: 10, RestrictOnUnset: true}}
	c := ForUser(restrictOnUnset, "library_id", "own", "series")
	assert.True(t, matchesAgeCondition(t, c, nil, &five), "own unset, series=5 <= 10 should pass under restrict_on_unset=true")
	assert.False(t, matchesAgeCondition(t, c, nil, nil), "own unset, series unset should not pass under restrict_on_unset=true")
	assert.False(t, matchesAgeCondition(t, c, nil, &fiveHundred), "own unset, series=500 > 10 should not pass under restrict_on_unset=true")
	assert.True(t, matchesAgeCondition(t, c, &five, nil), "own=5 <= 10 should pass regardless of series rating")

	allowUnset := &models.User{AgeRestriction: &models.AgeRestriction{Age: 10, RestrictOnUnset: false}}
	c = ForUser(allowUnset, "library_id", "own", "series")
	assert.True(t, matchesAgeCondition(t, c, nil, nil), "own unset, series unset should pass under restrict_on_unset=false")
	assert.False(t, matchesAgeCondition(t, c, nil, &fiveHundred), "own unset, series=500 > 10 should not pass under restrict_on_unset=false")
	assert.True(t, matchesAgeCondition(t, c, nil, &ten), "own unset, series=10 <= 10 should pass under restrict_on_unset=false")
}

// matchesAgeCondition evaluates c.SQL (a "?"-parameterized fragment over
// columns "own" and "series") against one candidate row via an in-memory
// SQLite connection, so the series-fallback test exercises the actual
// rendered condition rather than re-deriving its logic by hand.
func matchesAgeCondition(t *testing.T, c Condition, own, series *int) bool {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE row (own INTEGER, series INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO row (own, series) VALUES (?, ?)`, own, series)
	require.NoError(t, err)
	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM row WHERE `+c.SQL, c.Args...).Scan(&count)
	require.NoError(t, err)
	return count == 1
}

func TestForUserSeriesChildren_NilUser(t *testing.T) {
	c := ForUserSeriesChildren(nil, "media", "series_id", "library_id", "age_rating", "series_age_rating")
	assert.Equal(t, "1=0", c.SQL)
}

func TestForUserSeriesChildren_ServerOwner(t *testing.T) {
	u := &models.User{IsServerOwner: true}
	c := ForUserSeriesChildren(u, "media", "series_id", "library_id", "age_rating", "series_age_rating")
	assert.True(t, c.Empty())
}

func TestForUserSeriesChildren_BuildsExistsSubquery(t *testing.T) {
	u := &models.User{AgeRestriction: &models.AgeRestriction{Age: 10, RestrictOnUnset: true}}
	c := ForUserSeriesChildren(u, "media", "s.id", "library_id", "age_rating", "series_age_rating")
	assert.Contains(t, c.SQL, "EXISTS (SELECT 1 FROM media m WHERE")
	assert.Contains(t, c.SQL, "m.series_id = s.id")
	assert.Equal(t, []interface{}{10, 10}, c.Args)
}
