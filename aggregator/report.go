package aggregator

import "github.com/samber/lo"

type outcome struct {
	ok       bool
	admitted bool
}

func summarize(outcomes []outcome) Report {
	admitted := lo.Filter(outcomes, func(o outcome, _ int) bool { return o.admitted })
	succeeded := lo.CountBy(admitted, func(o outcome) bool { return o.ok })

	return Report{
		Sources:   len(outcomes),
		Succeeded: succeeded,
		Failed:    len(admitted) - succeeded,
		Dropped:   len(outcomes) - len(admitted),
	}
}
