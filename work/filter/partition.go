package filter

import (
	"teleloop/work/types"
)

// parentFields is the fixed set of fields that are only meaningful at the
// parent (show) level of a hierarchical library. The list is hand-maintained:
// a new catalog field that belongs to the show rather than the episode must
// be added here or two-phase filtering will scope it to episodes.
var parentFields = map[types.Field]bool{
	types.FieldSeriesTitle:   true,
	types.FieldNetwork:       true,
	types.FieldContentRating: true,
}

// IsParentField reports whether a field is evaluated against the show rather
// than the episode during two-phase filtering.
func IsParentField(f types.Field) bool {
	return parentFields[f]
}

// SplitParentChild partitions a rule tree into a parent-level subtree and a
// child-level subtree, preserving the group's combination mode on both sides.
// Parent rules are applied to shows before their episodes are ever fetched;
// everything else applies to the expanded episode union. Nested groups are
// partitioned recursively, and subgroups that end up empty on one side are
// dropped from that side so they do not vacuously match.
func SplitParentChild(group types.FilterGroup) (parent, child types.FilterGroup) {
	parent = types.FilterGroup{Mode: group.Mode}
	child = types.FilterGroup{Mode: group.Mode}

	for _, rule := range group.Rules {
		if IsParentField(rule.Field) {
			parent.Rules = append(parent.Rules, rule)
		} else {
			child.Rules = append(child.Rules, rule)
		}
	}

	for _, sub := range group.Groups {
		p, c := SplitParentChild(sub)
		if !p.Empty() {
			parent.Groups = append(parent.Groups, p)
		}
		if !c.Empty() {
			child.Groups = append(child.Groups, c)
		}
	}

	return parent, child
}
