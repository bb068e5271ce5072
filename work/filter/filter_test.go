package filter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"teleloop/work/filter"
	"teleloop/work/types"
)

var evalNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func rule(field types.Field, op types.Operator, v types.FilterValue) types.FilterRule {
	return types.FilterRule{Field: field, Operator: op, Value: v}
}

func TestMatches_CombineModes(t *testing.T) {
	drama2005 := &types.MediaItem{Title: "A Film", Year: 2005, Genres: []string{"Drama"}}
	comedy1999 := &types.MediaItem{Title: "Old Laughs", Year: 1999, Genres: []string{"Comedy"}}

	group := types.FilterGroup{
		Mode: types.CombineAll,
		Rules: []types.FilterRule{
			rule(types.FieldYear, types.OpGreaterOrEqual, types.NumberValue(2000)),
			rule(types.FieldGenre, types.OpEquals, types.EnumSetValue("Drama")),
		},
	}

	assert.True(t, filter.Matches(drama2005, group, evalNow))
	assert.False(t, filter.Matches(comedy1999, group, evalNow), "fails both rules")

	group.Mode = types.CombineAny
	assert.True(t, filter.Matches(drama2005, group, evalNow))
	assert.False(t, filter.Matches(comedy1999, group, evalNow))

	// One rule satisfied is enough under ANY.
	drama1999 := &types.MediaItem{Title: "Old Drama", Year: 1999, Genres: []string{"Drama"}}
	assert.True(t, filter.Matches(drama1999, group, evalNow))
	group.Mode = types.CombineAll
	assert.False(t, filter.Matches(drama1999, group, evalNow))
}

func TestMatches_EmptyGroupMatchesEverything(t *testing.T) {
	assert.True(t, filter.Matches(&types.MediaItem{}, types.FilterGroup{}, evalNow))
}

func TestMatches_UnknownModeDefaultsToAll(t *testing.T) {
	item := &types.MediaItem{Year: 2005}
	group := types.FilterGroup{
		Mode: "sometimes",
		Rules: []types.FilterRule{
			rule(types.FieldYear, types.OpEquals, types.NumberValue(2005)),
			rule(types.FieldYear, types.OpEquals, types.NumberValue(1999)),
		},
	}
	assert.False(t, filter.Matches(item, group, evalNow), "one failing rule sinks an ALL group")
}

func TestMatches_NestedGroups(t *testing.T) {
	item := &types.MediaItem{Title: "The Thing", Year: 1982, Genres: []string{"Horror"}}

	// year < 1990 AND (genre Horror OR genre Comedy)
	group := types.FilterGroup{
		Mode:  types.CombineAll,
		Rules: []types.FilterRule{rule(types.FieldYear, types.OpLessThan, types.NumberValue(1990))},
		Groups: []types.FilterGroup{{
			Mode: types.CombineAny,
			Rules: []types.FilterRule{
				rule(types.FieldGenre, types.OpEquals, types.EnumSetValue("Horror")),
				rule(types.FieldGenre, types.OpEquals, types.EnumSetValue("Comedy")),
			},
		}},
	}
	assert.True(t, filter.Matches(item, group, evalNow))

	item.Genres = []string{"Sci-Fi"}
	assert.False(t, filter.Matches(item, group, evalNow))
}

func TestMatchesRule_TextAbsence(t *testing.T) {
	noNetwork := &types.MediaItem{Title: "Standalone"}

	tests := []struct {
		op   types.Operator
		want bool
	}{
		{types.OpEquals, false},
		{types.OpNotEquals, true},
		{types.OpContains, false},
		{types.OpNotContains, false},
		{types.OpBeginsWith, false},
		{types.OpEndsWith, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			got := filter.MatchesRule(noNetwork, rule(types.FieldNetwork, tt.op, types.TextValue("HBO")), evalNow)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchesRule_TextCaseInsensitive(t *testing.T) {
	item := &types.MediaItem{Title: "The Wire"}
	assert.True(t, filter.MatchesRule(item, rule(types.FieldTitle, types.OpEquals, types.TextValue("the wire")), evalNow))
	assert.True(t, filter.MatchesRule(item, rule(types.FieldTitle, types.OpContains, types.TextValue("WIRE")), evalNow))
	assert.True(t, filter.MatchesRule(item, rule(types.FieldTitle, types.OpBeginsWith, types.TextValue("the")), evalNow))
	assert.False(t, filter.MatchesRule(item, rule(types.FieldTitle, types.OpEndsWith, types.TextValue("the")), evalNow))
}

func TestMatchesRule_NumberEpsilon(t *testing.T) {
	item := &types.MediaItem{Rating: 7.5}

	// Differences strictly below the tolerance compare equal.
	assert.True(t, filter.MatchesRule(item, rule(types.FieldRating, types.OpEquals, types.NumberValue(7.50009)), evalNow))
	assert.False(t, filter.MatchesRule(item, rule(types.FieldRating, types.OpEquals, types.NumberValue(7.50011)), evalNow))

	assert.False(t, filter.MatchesRule(item, rule(types.FieldRating, types.OpNotEquals, types.NumberValue(7.50009)), evalNow))
	assert.True(t, filter.MatchesRule(item, rule(types.FieldRating, types.OpNotEquals, types.NumberValue(7.50011)), evalNow))
}

func TestMatchesRule_NumberAbsence(t *testing.T) {
	unknownYear := &types.MediaItem{Title: "Undated"}
	assert.False(t, filter.MatchesRule(unknownYear, rule(types.FieldYear, types.OpLessThan, types.NumberValue(3000)), evalNow))

	// View count zero is a real value, not absence.
	assert.True(t, filter.MatchesRule(unknownYear, rule(types.FieldViewCount, types.OpEquals, types.NumberValue(0)), evalNow))
}

func TestMatchesRule_EnumSemantics(t *testing.T) {
	item := &types.MediaItem{Genres: []string{"Drama", "Crime"}}

	assert.True(t, filter.MatchesRule(item, rule(types.FieldGenre, types.OpEquals, types.EnumSetValue("crime", "western")), evalNow), "intersection matches case-insensitively")
	assert.False(t, filter.MatchesRule(item, rule(types.FieldGenre, types.OpEquals, types.EnumSetValue("Western")), evalNow))
	assert.True(t, filter.MatchesRule(item, rule(types.FieldGenre, types.OpNotEquals, types.EnumSetValue("Western")), evalNow))

	// Absent content rating is disjoint from everything.
	assert.False(t, filter.MatchesRule(item, rule(types.FieldContentRating, types.OpEquals, types.EnumValue("TV-14")), evalNow))
	assert.True(t, filter.MatchesRule(item, rule(types.FieldContentRating, types.OpNotEquals, types.EnumValue("TV-14")), evalNow))
}

func TestMatchesRule_Watched(t *testing.T) {
	watched := &types.MediaItem{Watched: true}
	fresh := &types.MediaItem{}

	r := rule(types.FieldWatched, types.OpEquals, types.BoolValue(false))
	assert.False(t, filter.MatchesRule(watched, r, evalNow))
	assert.True(t, filter.MatchesRule(fresh, r, evalNow))
}

func TestMatchesRule_DateOperators(t *testing.T) {
	aired := time.Date(2020, 5, 10, 18, 30, 0, 0, time.UTC)
	item := &types.MediaItem{AiredAt: aired}

	target := types.DateValue(time.Date(2020, 5, 10, 0, 0, 0, 0, time.UTC))
	assert.True(t, filter.MatchesRule(item, rule(types.FieldAirDate, types.OpOn, target), evalNow), "on covers the whole civil day")
	assert.False(t, filter.MatchesRule(item, rule(types.FieldAirDate, types.OpBefore, target), evalNow))
	assert.False(t, filter.MatchesRule(item, rule(types.FieldAirDate, types.OpAfter, target), evalNow))

	dayBefore := types.DateValue(time.Date(2020, 5, 11, 0, 0, 0, 0, time.UTC))
	assert.True(t, filter.MatchesRule(item, rule(types.FieldAirDate, types.OpBefore, dayBefore), evalNow))

	dayAfter := types.DateValue(time.Date(2020, 5, 9, 0, 0, 0, 0, time.UTC))
	assert.True(t, filter.MatchesRule(item, rule(types.FieldAirDate, types.OpAfter, dayAfter), evalNow))
}

func TestMatchesRule_RelativePreset(t *testing.T) {
	recent := &types.MediaItem{AddedAt: evalNow.Add(-3 * 24 * time.Hour)}
	old := &types.MediaItem{AddedAt: evalNow.Add(-40 * 24 * time.Hour)}

	r := rule(types.FieldAddedAt, types.OpOn, types.PresetValue(types.PresetLast7Days))
	assert.True(t, filter.MatchesRule(recent, r, evalNow))
	assert.False(t, filter.MatchesRule(old, r, evalNow))

	r30 := rule(types.FieldAddedAt, types.OpOn, types.PresetValue(types.PresetLast30Days))
	assert.True(t, filter.MatchesRule(recent, r30, evalNow))
	assert.False(t, filter.MatchesRule(old, r30, evalNow))
}

func TestMatchesRule_FailsClosed(t *testing.T) {
	item := &types.MediaItem{Title: "Anything", Year: 2020}

	// Unknown field.
	assert.False(t, filter.MatchesRule(item, rule("director", types.OpEquals, types.TextValue("x")), evalNow))

	// Value kind mismatched to the field.
	assert.False(t, filter.MatchesRule(item, rule(types.FieldYear, types.OpEquals, types.TextValue("2020")), evalNow))
	assert.False(t, filter.MatchesRule(item, rule(types.FieldTitle, types.OpEquals, types.NumberValue(1)), evalNow))

	// Operator not applicable to the kind.
	assert.False(t, filter.MatchesRule(item, rule(types.FieldYear, types.OpContains, types.NumberValue(2020)), evalNow))
	assert.False(t, filter.MatchesRule(item, rule(types.FieldGenre, types.OpGreaterThan, types.EnumSetValue("Drama")), evalNow))
}
