package pipeline

import (
	"sort"

	"github.com/oakfield-research/qex-cli/internal/model"
)

// Aggregate groups extracted outcomes by exact outcome name. The grouping is
// pure and deterministic: groups sort by name, record order within a group
// follows input order, and the group description is the first non-empty one
// seen.
func Aggregate(outcomes []model.OutcomeRecord) *model.AggregateResult {
	byName := map[string]*model.OutcomeGroup{}
	var names []string

	for _, o := range outcomes {
		g, ok := byName[o.OutcomeName]
		if !ok {
			g = &model.OutcomeGroup{Name: o.OutcomeName}
			byName[o.OutcomeName] = g
			names = append(names, o.OutcomeName)
		}
		if g.Description == "" {
			g.Description = o.OutcomeDescription
		}
		g.Records = append(g.Records, o)
	}

	sort.Strings(names)

	result := &model.AggregateResult{}
	for _, name := range names {
		g := byName[name]
		g.VariationCount = len(g.Records)
		g.Tables = distinctSorted(g.Records, func(o model.OutcomeRecord) string { return o.TableNumber })
		g.TreatmentArms = distinctSorted(g.Records, func(o model.OutcomeRecord) string { return o.TreatmentArm })
		g.Subgroups = distinctSorted(g.Records, func(o model.OutcomeRecord) string { return o.Subgroup })
		result.Groups = append(result.Groups, *g)
	}
	return result
}

func distinctSorted(records []model.OutcomeRecord, field func(model.OutcomeRecord) string) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range records {
		v := field(r)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
