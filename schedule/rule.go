// Package schedule converts between simulated business time and wall-clock
// trigger time. It encodes the twice-daily generation rule and the catch-up
// policy for missed triggers.
//
// Every function is a deterministic function of its inputs and the
// configured rule; there is no hidden state.
package schedule

import (
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// The twice-daily rule: the 13:00 run covers the same day's morning
// activity, the 01:00 run covers the previous day's afternoon and evening.
const (
	morningExpr = "0 13 * * *"
	nightExpr   = "0 1 * * *"
)

// cronParser supports standard 5-field cron expressions.
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// IsZero reports whether both bounds are unset.
func (w Window) IsZero() bool { return w.Start.IsZero() && w.End.IsZero() }

// TimeRule computes trigger instants and the data windows they cover.
type TimeRule struct {
	morning cronlib.Schedule
	night   cronlib.Schedule

	histStart time.Time
	loc       *time.Location
	logger    *slog.Logger
}

// Option configures a TimeRule.
type Option func(*TimeRule)

// WithLocation sets the calendar location for trigger computation.
// Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(r *TimeRule) { r.loc = loc }
}

// WithHistoricalStart sets the configured start of the historical window.
// Zero means one year before the current day.
func WithHistoricalStart(t time.Time) Option {
	return func(r *TimeRule) { r.histStart = t }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *TimeRule) { r.logger = logger }
}

// NewTimeRule creates the twice-daily rule.
func NewTimeRule(opts ...Option) *TimeRule {
	morning, err := cronParser.Parse(morningExpr)
	if err != nil {
		panic("schedule: invalid morning expression: " + err.Error())
	}
	night, err := cronParser.Parse(nightExpr)
	if err != nil {
		panic("schedule: invalid night expression: " + err.Error())
	}

	r := &TimeRule{
		morning: morning,
		night:   night,
		loc:     time.Local,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NextTrigger returns the next 13:00 or 01:00 instant strictly after now.
func (r *TimeRule) NextTrigger(now time.Time) time.Time {
	now = now.In(r.loc)
	m := r.morning.Next(now)
	n := r.night.Next(now)
	if m.Before(n) {
		return m
	}
	return n
}

// MissedTriggers returns every trigger instant in (lastSuccess, now], oldest
// first. A zero lastSuccess means no run has ever succeeded; nothing is
// considered missed on a fresh deployment.
func (r *TimeRule) MissedTriggers(lastSuccess, now time.Time) []time.Time {
	if lastSuccess.IsZero() {
		return nil
	}

	var missed []time.Time
	for t := r.NextTrigger(lastSuccess); !t.After(now); t = r.NextTrigger(t) {
		missed = append(missed, t)
	}
	return missed
}

// IsCatchUpNeeded reports whether a scheduled trigger elapsed without a
// corresponding successful completion.
func (r *TimeRule) IsCatchUpNeeded(lastSuccess, now time.Time) bool {
	return len(r.MissedTriggers(lastSuccess, now)) > 0
}

// TriggerWindow resolves the data window a trigger instant covers: a 13:00
// trigger covers the same day [00:00, 12:00); a 01:00 trigger covers the
// previous day [13:00, 24:00). This is the trigger's logical time, so a
// catch-up task generates record timestamps reflecting when the data should
// have been produced, not when the miss was detected.
func (r *TimeRule) TriggerWindow(trigger time.Time) Window {
	trigger = trigger.In(r.loc)
	y, m, d := trigger.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, r.loc)

	if trigger.Hour() >= 12 {
		// Morning run: same day 00:00–12:00.
		return Window{Start: midnight, End: midnight.Add(12 * time.Hour)}
	}
	// Night run: previous day 13:00–24:00.
	prev := midnight.AddDate(0, 0, -1)
	return Window{Start: prev.Add(13 * time.Hour), End: midnight}
}

// HistoricalWindow resolves the configured historical start date through
// "yesterday" relative to now. The end bound is exclusive and always
// strictly before the current calendar day, so historical and realtime
// windows never overlap. A start on or after the current day is clamped to
// an empty window with a warning.
func (r *TimeRule) HistoricalWindow(now time.Time) Window {
	now = now.In(r.loc)
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, r.loc)

	start := r.histStart
	if start.IsZero() {
		start = today.AddDate(-1, 0, 0)
	} else {
		sy, sm, sd := start.In(r.loc).Date()
		start = time.Date(sy, sm, sd, 0, 0, 0, 0, r.loc)
	}

	if start.After(today) {
		r.logger.Warn("historical start after current day, clamping to empty window",
			slog.Time("start", start),
			slog.Time("today", today),
		)
		return Window{Start: today, End: today}
	}
	return Window{Start: start, End: today}
}
