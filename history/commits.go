// Package history samples the git history of a stored N-Triples file and
// reports how its statements changed from one day to the next.
package history

import (
	"cmp"
	"slices"
	"time"

	"github.com/c360studio/ontowatch/tools/git"
)

// CommitRecord is one revision of the tracked file. Seq is the commit's
// position in the chronological log and breaks ties between equal author
// timestamps.
type CommitRecord struct {
	ID       string
	Authored time.Time
	Seq      int
}

// Date returns the calendar day of the commit in the author's own time zone.
func (c CommitRecord) Date() string {
	return c.Authored.Format(time.DateOnly)
}

// later reports whether c was made after o.
func (c CommitRecord) later(o CommitRecord) bool {
	if c.Authored.Equal(o.Authored) {
		return c.Seq > o.Seq
	}
	return c.Authored.After(o.Authored)
}

// DayCommit is the commit chosen to represent a calendar day.
type DayCommit struct {
	Date   string
	Commit CommitRecord
}

// FromLog converts git log entries, newest first, into commit records with
// chronological sequence numbers.
func FromLog(entries []git.LogEntry) []CommitRecord {
	records := make([]CommitRecord, len(entries))
	for i, e := range entries {
		records[i] = CommitRecord{
			ID:       e.ID,
			Authored: e.Authored,
			Seq:      len(entries) - 1 - i,
		}
	}
	return records
}

// ReduceByDay keeps the last commit of each day and returns the days in
// ascending order. Input order does not matter.
func ReduceByDay(records []CommitRecord) []DayCommit {
	last := make(map[string]CommitRecord, len(records))
	for _, r := range records {
		d := r.Date()
		if cur, ok := last[d]; !ok || r.later(cur) {
			last[d] = r
		}
	}

	days := make([]DayCommit, 0, len(last))
	for d, r := range last {
		days = append(days, DayCommit{Date: d, Commit: r})
	}
	slices.SortFunc(days, func(a, b DayCommit) int {
		return cmp.Compare(a.Date, b.Date)
	})
	return days
}
