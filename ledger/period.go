package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Reporting window
// =============================================================================

// Period is a half-open window [Start, End). A zero Start or End leaves that
// side unbounded, so the zero Period covers all time.
type Period struct {
	Start time.Time
	End   time.Time
}

// AllTime is the unbounded window.
var AllTime = Period{}

// Contains returns true if t falls inside the window.
func (p Period) Contains(t time.Time) bool {
	if !p.Start.IsZero() && t.Before(p.Start) {
		return false
	}
	if !p.End.IsZero() && !t.Before(p.End) {
		return false
	}
	return true
}

// Before returns true if t is earlier than the window start.
func (p Period) Before(t time.Time) bool {
	return !p.Start.IsZero() && t.Before(p.Start)
}

func (p Period) Validate() error {
	if !p.Start.IsZero() && !p.End.IsZero() && p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

func (p Period) String() string {
	start, end := "-inf", "+inf"
	if !p.Start.IsZero() {
		start = p.Start.Format(time.RFC3339)
	}
	if !p.End.IsZero() {
		end = p.End.Format(time.RFC3339)
	}
	return fmt.Sprintf("[%s, %s)", start, end)
}

// =============================================================================
// PERIOD CONSTRUCTORS
// =============================================================================

func Day(year int, month time.Month, day int) Period {
	start := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 0, 1)}
}

func Month(year int, month time.Month) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

func Year(year int) Period {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(1, 0, 0)}
}

// ParsePeriod reads optional "2006-01-02" bounds. The end date is inclusive
// for callers, so the window runs to the start of the following day.
func ParsePeriod(from, to string) (Period, error) {
	var p Period
	if from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return Period{}, fmt.Errorf("invalid from date %q: %w", from, err)
		}
		p.Start = t
	}
	if to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return Period{}, fmt.Errorf("invalid to date %q: %w", to, err)
		}
		p.End = t.AddDate(0, 0, 1)
	}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}
