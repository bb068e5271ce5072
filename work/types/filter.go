package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Field is the closed set of media attributes a filter rule may target.
// Adding a field means teaching the filter engine its value kind and its
// candidate extraction; unknown fields fail closed at evaluation time.
type Field string

// Filter fields. SeriesTitle, Network and ContentRating are only meaningful
// at the parent (show) level of a hierarchical library; everything else is
// evaluated against the schedulable item itself.
const (
	FieldTitle         Field = "title"
	FieldSeriesTitle   Field = "seriesTitle"
	FieldYear          Field = "year"
	FieldGenre         Field = "genre"
	FieldRating        Field = "rating"
	FieldContentRating Field = "contentRating"
	FieldNetwork       Field = "network"
	FieldAirDate       Field = "airDate"
	FieldAddedAt       Field = "addedAt"
	FieldWatched       Field = "watched"
	FieldViewCount     Field = "viewCount"
	FieldSeason        Field = "season"
	FieldEpisode       Field = "episode"
)

// Operator is the closed comparison set. Which operators apply to a rule is
// constrained by the declared value kind of its field; a mismatched pair
// always evaluates to false rather than raising.
type Operator string

const (
	OpContains       Operator = "contains"
	OpNotContains    Operator = "notContains"
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "notEquals"
	OpBeginsWith     Operator = "beginsWith"
	OpEndsWith       Operator = "endsWith"
	OpGreaterThan    Operator = "greaterThan"
	OpLessThan       Operator = "lessThan"
	OpGreaterOrEqual Operator = "greaterOrEqual"
	OpLessOrEqual    Operator = "lessOrEqual"
	OpBefore         Operator = "before"
	OpOn             Operator = "on"
	OpAfter          Operator = "after"
)

// ValueKind tags the FilterValue union.
type ValueKind string

const (
	ValueText           ValueKind = "text"
	ValueNumber         ValueKind = "number"
	ValueBool           ValueKind = "bool"
	ValueDate           ValueKind = "date"
	ValueEnum           ValueKind = "enum"
	ValueEnumSet        ValueKind = "enumSet"
	ValueRelativePreset ValueKind = "relativePreset"
	ValueRelativeSpec   ValueKind = "relativeSpec"
)

// RelativePreset names a predefined rolling date window ending today.
type RelativePreset string

const (
	PresetToday       RelativePreset = "today"
	PresetLast7Days   RelativePreset = "last7days"
	PresetLast30Days  RelativePreset = "last30days"
	PresetLast90Days  RelativePreset = "last90days"
	PresetLast365Days RelativePreset = "last365days"
)

// RelativeUnit is the unit of a custom relative-date spec.
type RelativeUnit string

const (
	UnitSeconds RelativeUnit = "seconds"
	UnitMinutes RelativeUnit = "minutes"
	UnitHours   RelativeUnit = "hours"
	UnitDays    RelativeUnit = "days"
	UnitWeeks   RelativeUnit = "weeks"
	UnitMonths  RelativeUnit = "months"
	UnitYears   RelativeUnit = "years"
)

// Duration converts the unit to a time.Duration for one magnitude step.
// Months and years use fixed civil approximations (30.44 and 365.25 days)
// so custom windows stay stable regardless of the current calendar month.
func (u RelativeUnit) Duration() time.Duration {
	switch u {
	case UnitSeconds:
		return time.Second
	case UnitMinutes:
		return time.Minute
	case UnitHours:
		return time.Hour
	case UnitDays:
		return 24 * time.Hour
	case UnitWeeks:
		return 7 * 24 * time.Hour
	case UnitMonths:
		return time.Duration(30.44 * float64(24*time.Hour))
	case UnitYears:
		return time.Duration(365.25 * float64(24*time.Hour))
	default:
		return 0
	}
}

// RelativeSpec is a custom magnitude+unit rolling window ending today.
type RelativeSpec struct {
	Magnitude int          `json:"magnitude"`
	Unit      RelativeUnit `json:"unit"`
}

// FilterValue is a closed tagged union over the comparable value kinds. The
// Kind field selects which payload field is meaningful; the constructors
// below are the only supported way to build one.
type FilterValue struct {
	Kind   ValueKind      `json:"kind"`
	Text   string         `json:"text,omitempty"`
	Number float64        `json:"number,omitempty"`
	Bool   bool           `json:"bool,omitempty"`
	Date   time.Time      `json:"date,omitempty"`
	Enum   []string       `json:"enum,omitempty"`
	Preset RelativePreset `json:"preset,omitempty"`
	Spec   RelativeSpec   `json:"spec,omitempty"`
}

// TextValue builds a text-kind filter value.
func TextValue(s string) FilterValue { return FilterValue{Kind: ValueText, Text: s} }

// NumberValue builds a number-kind filter value.
func NumberValue(n float64) FilterValue { return FilterValue{Kind: ValueNumber, Number: n} }

// BoolValue builds a bool-kind filter value.
func BoolValue(b bool) FilterValue { return FilterValue{Kind: ValueBool, Bool: b} }

// DateValue builds an absolute-date filter value.
func DateValue(t time.Time) FilterValue { return FilterValue{Kind: ValueDate, Date: t} }

// EnumValue builds a single-enum filter value.
func EnumValue(tag string) FilterValue { return FilterValue{Kind: ValueEnum, Enum: []string{tag}} }

// EnumSetValue builds a multi-enum filter value.
func EnumSetValue(tags ...string) FilterValue { return FilterValue{Kind: ValueEnumSet, Enum: tags} }

// PresetValue builds a named relative-date filter value.
func PresetValue(p RelativePreset) FilterValue {
	return FilterValue{Kind: ValueRelativePreset, Preset: p}
}

// SpecValue builds a custom relative-date filter value.
func SpecValue(magnitude int, unit RelativeUnit) FilterValue {
	return FilterValue{Kind: ValueRelativeSpec, Spec: RelativeSpec{Magnitude: magnitude, Unit: unit}}
}

// FilterRule is one (field, operator, value) comparison leaf.
type FilterRule struct {
	Field    Field       `json:"field"`
	Operator Operator    `json:"operator"`
	Value    FilterValue `json:"value"`
}

// CombineMode selects how a group reduces its child results.
type CombineMode string

const (
	CombineAll CombineMode = "all" // AND: every rule and subgroup must match
	CombineAny CombineMode = "any" // OR: at least one rule or subgroup must match
)

// FilterGroup is a tree node combining rules and nested groups under ALL or
// ANY semantics. An empty group (no rules, no subgroups) matches everything.
type FilterGroup struct {
	Mode   CombineMode   `json:"mode"`
	Rules  []FilterRule  `json:"rules,omitempty"`
	Groups []FilterGroup `json:"groups,omitempty"`
}

// Empty reports whether the group has neither rules nor subgroups.
func (g FilterGroup) Empty() bool {
	return len(g.Rules) == 0 && len(g.Groups) == 0
}

// Summary renders a compact one-line description of the group for channel
// provenance notes and logs.
func (g FilterGroup) Summary() string {
	if g.Empty() {
		return "everything"
	}
	parts := make([]string, 0, len(g.Rules)+len(g.Groups))
	for _, r := range g.Rules {
		parts = append(parts, fmt.Sprintf("%s %s", r.Field, r.Operator))
	}
	for _, sub := range g.Groups {
		parts = append(parts, "("+sub.Summary()+")")
	}
	joiner := " AND "
	if g.Mode == CombineAny {
		joiner = " OR "
	}
	return strings.Join(parts, joiner)
}

// UnmarshalJSON applies the ALL default when a serialized group omits mode,
// so hand-written channel definitions behave like the builder UI's default.
func (g *FilterGroup) UnmarshalJSON(data []byte) error {
	type alias FilterGroup
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Mode == "" {
		a.Mode = CombineAll
	}
	*g = FilterGroup(a)
	return nil
}

// SortKey is the closed sort key set for catalog queries.
type SortKey string

const (
	SortTitle       SortKey = "title"
	SortYear        SortKey = "year"
	SortRating      SortKey = "rating"
	SortAddedAt     SortKey = "addedAt"
	SortAirDate     SortKey = "airDate"
	SortViewCount   SortKey = "viewCount"
	SortSeriesTitle SortKey = "seriesTitle"
	SortRandom      SortKey = "random" // Ignores Descending
)

// SortDescriptor pairs a sort key with a direction. Random ignores the
// direction entirely.
type SortDescriptor struct {
	Key        SortKey `json:"key"`
	Descending bool    `json:"descending,omitempty"`
}
