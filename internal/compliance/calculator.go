// Package compliance derives regulatory deadlines from a formation date and
// jurisdiction, and persists them through a DeadlineWriter.
package compliance

import (
	"fmt"
	"sort"
	"time"
)

// ComputeDeadlines is deterministic and side-effect free. Only the calendar
// date of formation is used; the time of day and location are discarded.
//
// Annual report and agent renewal fall on the first anniversary. A February
// 29 formation rolls over to March 1 in non-leap years.
func ComputeDeadlines(formation time.Time, jurisdiction string) []Deadline {
	formed := DateOf(formation)
	j := NormalizeJurisdiction(jurisdiction)

	taxDue := time.Date(formed.Year()+1, time.April, 15, 0, 0, 0, 0, time.UTC)
	anniversary := formed.AddDate(1, 0, 0)

	deadlines := []Deadline{
		newDeadline(DeadlineIRS1120, taxDue, "",
			fmt.Sprintf("Federal corporate income tax return for tax year %d", formed.Year())),
		newDeadline(DeadlineIRS5472, taxDue, "",
			fmt.Sprintf("Information return for foreign-owned U.S. entity, tax year %d", formed.Year())),
	}
	if j.RequiresAnnualReport() {
		deadlines = append(deadlines, newDeadline(DeadlineAnnualReport, anniversary, j,
			fmt.Sprintf("%s annual report and state fee", j)))
	}
	deadlines = append(deadlines, newDeadline(DeadlineAgentRenewal, anniversary, j,
		"Registered agent service renewal"))

	SortDeadlines(deadlines)
	return deadlines
}

func newDeadline(t DeadlineType, due time.Time, j Jurisdiction, desc string) Deadline {
	return Deadline{
		Type:         t,
		DueDate:      due,
		ReminderDate: ReminderDate(due),
		Description:  desc,
		Jurisdiction: j,
	}
}

// ReminderDate is the due date minus sixty calendar days.
func ReminderDate(due time.Time) time.Time {
	return DateOf(due).AddDate(0, 0, -60)
}

// SortDeadlines orders by due date, then by type.
func SortDeadlines(ds []Deadline) {
	sort.SliceStable(ds, func(a, b int) bool {
		if !ds[a].DueDate.Equal(ds[b].DueDate) {
			return ds[a].DueDate.Before(ds[b].DueDate)
		}
		return ds[a].Type.rank() < ds[b].Type.rank()
	})
}

// DateOf truncates t to midnight UTC of its calendar date in t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
