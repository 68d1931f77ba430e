package access

import "github.com/stump/stump/internal/models"

// ForUser builds the access-control Condition that every library/series/
// media query must AND onto its caller-supplied filter. It
// merges two independent restrictions:
//
//   - hidden libraries: a user with one or more HiddenLibraries never sees
//     rows under those libraries, full stop.
//   - age restriction: when AgeRestriction is set, rows whose age_rating
//     exceeds the limit are excluded; RestrictOnUnset additionally decides
//     whether a row with no age_rating at all counts as restricted.
//
// The two are combined with And, never by nesting one inside the other's
// SQL string — that is the "wrapping a caller's query in an outer AND"
// bug this package exists to avoid.
func ForUser(u *models.User, libraryIDColumn, ageRatingColumn, seriesAgeRatingColumn string) Condition {
	if u == nil {
		return Condition{SQL: "1=0"}
	}
	if u.IsServerOwner {
		return True()
	}
	return And(hiddenLibraries(u, libraryIDColumn), ageRestriction(u, ageRatingColumn, seriesAgeRatingColumn))
}

func hiddenLibraries(u *models.User, libraryIDColumn string) Condition {
	if len(u.HiddenLibraries) == 0 {
		return True()
	}
	placeholders := make([]interface{}, len(u.HiddenLibraries))
	sql := ""
	for i, id := range u.HiddenLibraries {
		if i > 0 {
			sql += ", "
		}
		sql += "?"
		placeholders[i] = id.String()
	}
	return Raw(libraryIDColumn+" NOT IN ("+sql+")", placeholders...)
}

// ageRestriction mirrors the two-branch semantics from the design. A media
// row's own age_rating wins whenever it is set. When it is NULL, the row
// falls back to its series' age_rating before RestrictOnUnset's default
// applies:
//
//   - RestrictOnUnset=true: pass if the media's own rating is within the
//     limit, OR the media has no rating of its own but its series does and
//     that rating is within the limit. A media with no rating of its own
//     and no series rating either is excluded.
//   - RestrictOnUnset=false: same own-rating and series-fallback passes,
//     plus a media with neither a rating of its own nor a series rating is
//     allowed (the "unset" case this flag names).
func ageRestriction(u *models.User, ageRatingColumn, seriesAgeRatingColumn string) Condition {
	if u.AgeRestriction == nil {
		return True()
	}
	limit := u.AgeRestriction.Age
	ownWithinLimit := Raw(ageRatingColumn+" IS NOT NULL AND "+ageRatingColumn+" <= ?", limit)
	ownUnset := Raw(ageRatingColumn + " IS NULL")
	seriesWithinLimit := Raw(seriesAgeRatingColumn+" IS NOT NULL AND "+seriesAgeRatingColumn+" <= ?", limit)

	if u.AgeRestriction.RestrictOnUnset {
		return Or(ownWithinLimit, And(ownUnset, seriesWithinLimit))
	}
	seriesUnset := Raw(seriesAgeRatingColumn + " IS NULL")
	return Or(ownWithinLimit, And(ownUnset, Or(seriesUnset, seriesWithinLimit)))
}

// ForUserSeriesChildren builds the series-level variant: a series is
// visible if ANY of its media would be visible under ForUser, expressed
// as an EXISTS subquery rather than duplicating the media-level Condition
// inline at every call site.
func ForUserSeriesChildren(u *models.User, mediaTable, seriesIDColumn, libraryIDColumn, ageRatingColumn, seriesAgeRatingColumn string) Condition {
	if u == nil {
		return Condition{SQL: "1=0"}
	}
	if u.IsServerOwner {
		return True()
	}
	inner := ForUser(u, libraryIDColumn, ageRatingColumn, seriesAgeRatingColumn)
	base := Raw("m.series_id = " + seriesIDColumn)
	combined := And(base, inner)
	sql, args := combined.Render()
	return Raw("EXISTS (SELECT 1 FROM "+mediaTable+" m"+sql+")", args...)
}
