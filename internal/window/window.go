// Package window derives the reference date window a run reports on.
//
// The pipeline is a once-daily batch job: on most weekdays it covers exactly
// yesterday, and on Monday it sweeps the whole weekend gap (Friday through
// Sunday). Windows are calendar dates; request payloads expand them to
// full-day bounds.
package window

import (
	"fmt"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	tokenLayout = "02.01.2006"
)

// Window is an inclusive calendar-date range. Start never exceeds End.
type Window struct {
	Start time.Time
	End   time.Time
}

// Reference derives the window for a run happening on the given day.
func Reference(today time.Time) Window {
	day := truncateToDay(today)
	if day.Weekday() == time.Monday {
		return Window{Start: day.AddDate(0, 0, -3), End: day.AddDate(0, 0, -1)}
	}
	yesterday := day.AddDate(0, 0, -1)
	return Window{Start: yesterday, End: yesterday}
}

// StartDate renders the window start as YYYY-MM-DD.
func (w Window) StartDate() string { return w.Start.Format(dateLayout) }

// EndDate renders the window end as YYYY-MM-DD.
func (w Window) EndDate() string { return w.End.Format(dateLayout) }

// StartBound expands the window start to the first second of the day.
func (w Window) StartBound() string { return w.StartDate() + " 00:00:00" }

// EndBound expands the window end to the last second of the day.
func (w Window) EndBound() string { return w.EndDate() + " 23:59:59" }

// RangeToken renders the window the way generated report filenames embed it:
// dd.mm.YYYY dates joined by a literal A.
func (w Window) RangeToken() string {
	return fmt.Sprintf("%sA%s", w.Start.Format(tokenLayout), w.End.Format(tokenLayout))
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.StartDate(), w.EndDate())
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
