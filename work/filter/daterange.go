package filter

import (
	"time"

	"teleloop/work/types"
)

// ResolveDateRange normalizes any date-capable filter value into a concrete
// [lo, hi] interval at evaluation time. Relative forms are never
// pre-computed, since "now" moves between evaluations.
//
//   - An absolute date resolves to that calendar day.
//   - A named preset resolves to [start-of-day(now − N days), end-of-today].
//   - A custom magnitude+unit spec resolves to [start-of-day(now − m×unit),
//     end-of-today], with the fixed month/year approximations from the unit
//     table.
//
// The third return is false for value kinds that carry no date semantics.
func ResolveDateRange(v types.FilterValue, now time.Time) (time.Time, time.Time, bool) {
	switch v.Kind {
	case types.ValueDate:
		lo := startOfDay(v.Date)
		return lo, endOfDay(v.Date), true

	case types.ValueRelativePreset:
		days, ok := presetDays(v.Preset)
		if !ok {
			return time.Time{}, time.Time{}, false
		}
		lo := startOfDay(now.AddDate(0, 0, -days))
		return lo, endOfDay(now), true

	case types.ValueRelativeSpec:
		if v.Spec.Magnitude <= 0 {
			return time.Time{}, time.Time{}, false
		}
		step := v.Spec.Unit.Duration()
		if step <= 0 {
			return time.Time{}, time.Time{}, false
		}
		lo := startOfDay(now.Add(-time.Duration(v.Spec.Magnitude) * step))
		return lo, endOfDay(now), true

	default:
		return time.Time{}, time.Time{}, false
	}
}

func presetDays(p types.RelativePreset) (int, bool) {
	switch p {
	case types.PresetToday:
		return 0, true
	case types.PresetLast7Days:
		return 7, true
	case types.PresetLast30Days:
		return 30, true
	case types.PresetLast90Days:
		return 90, true
	case types.PresetLast365Days:
		return 365, true
	default:
		return 0, false
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).Add(24*time.Hour - time.Nanosecond)
}
