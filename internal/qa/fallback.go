package qa

import "fmt"

// BuildFallback returns deterministic templated pairs for a category when
// generation is unavailable. If count exceeds the template pool a generic
// filler pair is repeated until count is reached. Never fails.
func BuildFallback(categoryLabel string, count int) []Pair {
	base := []Pair{
		{
			Question: fmt.Sprintf("Walk through the most recent production incident you handled in a %s system and how you recovered?", categoryLabel),
			Answer:   "Describe how detection time was shortened, and which rollback or traffic-shaping strategy limited the blast radius, with concrete numbers where possible.",
		},
		{
			Question: fmt.Sprintf("What monitoring and alerting did you put in place to defend SLOs in the %s area?", categoryLabel),
			Answer:   "Name the signals treated as primary indicators and explain any rules or automation introduced to cut alert noise without hiding real regressions.",
		},
		{
			Question: fmt.Sprintf("Describe a %s architecture or technology decision and the trade-offs you weighed?", categoryLabel),
			Answer:   "Cover before/after metrics, how stakeholders were convinced, and any risks that only surfaced after the change shipped to production.",
		},
		{
			Question: fmt.Sprintf("How does your team decide which %s tech debt gets paid down first?", categoryLabel),
			Answer:   "Explain the prioritization criteria, any recurring refactoring or performance cycles, and how the work ties back to measurable service outcomes.",
		},
		{
			Question: fmt.Sprintf("Which %s trend or experiment is your team committing to over the next six months?", categoryLabel),
			Answer:   "Lay out the resources already secured, the success criteria for the experiment, and the mitigation plan if the bet does not pay off.",
		},
	}

	if count <= len(base) {
		return base[:count]
	}

	filler := Pair{
		Question: fmt.Sprintf("What guardrails reduce the recurring operational risks in your %s work?", categoryLabel),
		Answer:   "List the runbooks, automation, and safety checks in place, and quantify how much they actually reduced incident frequency or severity.",
	}
	out := make([]Pair, 0, count)
	out = append(out, base...)
	for len(out) < count {
		out = append(out, filler)
	}
	return out[:count]
}
