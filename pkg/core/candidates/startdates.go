package candidates

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/jakechorley/crop-planner/pkg/core/thermal"
)

// AdmissibleStartDates expands the sowing cadence between start and end inclusive.
//
// rule is an RFC 5545 recurrence such as "FREQ=WEEKLY;BYDAY=MO". An empty rule admits
// every day in the window.
func AdmissibleStartDates(rule string, start, end time.Time) ([]time.Time, error) {
	start, end = thermal.Day(start), thermal.Day(end)
	if end.Before(start) {
		return nil, nil
	}

	if rule == "" {
		var dates []time.Time
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			dates = append(dates, d)
		}
		return dates, nil
	}

	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("failed to parse start date rule %q: %w", rule, err)
	}
	r.DTStart(start)

	occurrences := r.Between(start, end, true)
	dates := make([]time.Time, 0, len(occurrences))
	for _, o := range occurrences {
		dates = append(dates, thermal.Day(o))
	}
	return dates, nil
}
