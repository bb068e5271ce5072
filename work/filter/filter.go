// Package filter evaluates a nested boolean rule tree against media item
// attributes. Evaluation is pure and side-effect free: the same item and
// group always produce the same answer for the same instant, and nothing is
// cached, so the engine is safe to call from any goroutine.
//
// The engine fails closed by policy: an operator that is not applicable to a
// field's declared value kind, an unknown field, or a value kind mismatch all
// evaluate to false rather than raising. Those are programming-contract
// violations, not user-facing errors.
package filter

import (
	"strings"
	"time"

	"teleloop/work/types"
)

// fieldKind declares the value kind each filter field carries. Operators and
// rule values are validated against this table at evaluation time; unknown
// fields evaluate to false.
var fieldKind = map[types.Field]types.ValueKind{
	types.FieldTitle:         types.ValueText,
	types.FieldSeriesTitle:   types.ValueText,
	types.FieldNetwork:       types.ValueText,
	types.FieldYear:          types.ValueNumber,
	types.FieldRating:        types.ValueNumber,
	types.FieldViewCount:     types.ValueNumber,
	types.FieldSeason:        types.ValueNumber,
	types.FieldEpisode:       types.ValueNumber,
	types.FieldGenre:         types.ValueEnumSet,
	types.FieldContentRating: types.ValueEnum,
	types.FieldWatched:       types.ValueBool,
	types.FieldAirDate:       types.ValueDate,
	types.FieldAddedAt:       types.ValueDate,
}

// numberEpsilon tolerates floating noise in number equality: differences
// strictly below it compare equal.
const numberEpsilon = 0.0001

// Matches evaluates a rule group against an item at the given instant. The
// instant is the reference for relative-date resolution and must be passed
// explicitly; the engine never reads the wall clock itself.
//
// An empty group (no rules, no subgroups) matches unconditionally. Otherwise
// rule results and nested-group results are collected into one list and
// reduced: ALL requires every result true, ANY requires at least one.
// Recursion has no depth limit beyond the data itself.
func Matches(item *types.MediaItem, group types.FilterGroup, now time.Time) bool {
	if group.Empty() {
		return true
	}

	results := make([]bool, 0, len(group.Rules)+len(group.Groups))
	for _, rule := range group.Rules {
		results = append(results, MatchesRule(item, rule, now))
	}
	for _, sub := range group.Groups {
		results = append(results, Matches(item, sub, now))
	}

	if group.Mode == types.CombineAny {
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}

	// ALL is the default for any unrecognized mode.
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}

// MatchesRule evaluates a single (field, operator, value) rule against an
// item. Dispatch is on the field's declared value kind; a rule whose value
// kind does not fit the field fails closed.
func MatchesRule(item *types.MediaItem, rule types.FilterRule, now time.Time) bool {
	kind, known := fieldKind[rule.Field]
	if !known {
		return false
	}

	switch kind {
	case types.ValueText:
		if rule.Value.Kind != types.ValueText {
			return false
		}
		candidate, present := textCandidate(item, rule.Field)
		return matchText(candidate, present, rule.Operator, rule.Value.Text)

	case types.ValueNumber:
		if rule.Value.Kind != types.ValueNumber {
			return false
		}
		candidate, present := numberCandidate(item, rule.Field)
		if !present {
			return false
		}
		return matchNumber(candidate, rule.Operator, rule.Value.Number)

	case types.ValueBool:
		if rule.Value.Kind != types.ValueBool {
			return false
		}
		return matchBool(boolCandidate(item, rule.Field), rule.Operator, rule.Value.Bool)

	case types.ValueEnum, types.ValueEnumSet:
		if rule.Value.Kind != types.ValueEnum && rule.Value.Kind != types.ValueEnumSet {
			return false
		}
		return matchEnum(enumCandidate(item, rule.Field), rule.Operator, rule.Value.Enum)

	case types.ValueDate:
		candidate, present := dateCandidate(item, rule.Field)
		if !present {
			return false
		}
		lo, hi, ok := ResolveDateRange(rule.Value, now)
		if !ok {
			return false
		}
		return matchDate(candidate, rule.Operator, lo, hi)

	default:
		return false
	}
}

// textCandidate resolves a text field from the item. Absence (empty string)
// is reported separately because text operators have distinct absence
// semantics: only notEquals succeeds against an absent candidate.
func textCandidate(item *types.MediaItem, field types.Field) (string, bool) {
	var v string
	switch field {
	case types.FieldTitle:
		v = item.Title
	case types.FieldSeriesTitle:
		v = item.SeriesTitle
	case types.FieldNetwork:
		v = item.Network
	}
	return v, v != ""
}

func numberCandidate(item *types.MediaItem, field types.Field) (float64, bool) {
	switch field {
	case types.FieldYear:
		return float64(item.Year), item.Year != 0
	case types.FieldRating:
		return item.Rating, item.Rating != 0
	case types.FieldViewCount:
		return float64(item.ViewCount), true
	case types.FieldSeason:
		return float64(item.Season), item.Season != 0
	case types.FieldEpisode:
		return float64(item.Episode), item.Episode != 0
	}
	return 0, false
}

func boolCandidate(item *types.MediaItem, field types.Field) bool {
	if field == types.FieldWatched {
		return item.Watched
	}
	return false
}

// enumCandidate resolves the item's tag set for an enum field. Single-valued
// fields produce a one-element set; an absent value produces an empty set,
// which is disjoint from everything (so notEquals succeeds against absence).
func enumCandidate(item *types.MediaItem, field types.Field) []string {
	switch field {
	case types.FieldGenre:
		return item.Genres
	case types.FieldContentRating:
		if item.ContentRating == "" {
			return nil
		}
		return []string{item.ContentRating}
	}
	return nil
}

func dateCandidate(item *types.MediaItem, field types.Field) (time.Time, bool) {
	switch field {
	case types.FieldAirDate:
		return item.AiredAt, !item.AiredAt.IsZero()
	case types.FieldAddedAt:
		return item.AddedAt, !item.AddedAt.IsZero()
	}
	return time.Time{}, false
}

// matchText implements the case-insensitive text operator set. When the
// candidate is absent only notEquals succeeds; every other operator fails
// closed, including notContains.
func matchText(candidate string, present bool, op types.Operator, target string) bool {
	if !present {
		return op == types.OpNotEquals
	}
	c := strings.ToLower(candidate)
	t := strings.ToLower(target)
	switch op {
	case types.OpContains:
		return strings.Contains(c, t)
	case types.OpNotContains:
		return !strings.Contains(c, t)
	case types.OpEquals:
		return c == t
	case types.OpNotEquals:
		return c != t
	case types.OpBeginsWith:
		return strings.HasPrefix(c, t)
	case types.OpEndsWith:
		return strings.HasSuffix(c, t)
	default:
		return false
	}
}

func matchNumber(candidate float64, op types.Operator, target float64) bool {
	diff := candidate - target
	if diff < 0 {
		diff = -diff
	}
	equal := diff < numberEpsilon
	switch op {
	case types.OpEquals:
		return equal
	case types.OpNotEquals:
		return !equal
	case types.OpGreaterThan:
		return candidate > target
	case types.OpLessThan:
		return candidate < target
	case types.OpGreaterOrEqual:
		return candidate >= target
	case types.OpLessOrEqual:
		return candidate <= target
	default:
		return false
	}
}

func matchBool(candidate bool, op types.Operator, target bool) bool {
	switch op {
	case types.OpEquals:
		return candidate == target
	case types.OpNotEquals:
		return candidate != target
	default:
		return false
	}
}

// matchEnum implements case-insensitive set semantics: equals is a non-empty
// intersection between the candidate tags and the target tags, notEquals is
// disjointness. Any other operator is unsupported for enum fields.
func matchEnum(candidates []string, op types.Operator, targets []string) bool {
	intersects := false
	for _, c := range candidates {
		for _, t := range targets {
			if strings.EqualFold(c, t) {
				intersects = true
				break
			}
		}
		if intersects {
			break
		}
	}
	switch op {
	case types.OpEquals:
		return intersects
	case types.OpNotEquals:
		return !intersects
	default:
		return false
	}
}

// matchDate compares a candidate instant against a resolved [lo, hi] range:
// before tests against the lower bound, after against the upper bound, and
// on tests containment.
func matchDate(candidate time.Time, op types.Operator, lo, hi time.Time) bool {
	switch op {
	case types.OpBefore:
		return candidate.Before(lo)
	case types.OpAfter:
		return candidate.After(hi)
	case types.OpOn:
		return !candidate.Before(lo) && !candidate.After(hi)
	default:
		return false
	}
}
