// Package market answers whether the US equity market is in its regular
// trading session.
package market

import (
	"time"
	_ "time/tzdata" // embed the zone database so America/New_York always loads
)

// Regular session bounds in exchange-local minutes since midnight.
const (
	openMinute  = 9*60 + 30
	closeMinute = 16 * 60
)

// Gate reports whether refreshes may run at t.
type Gate interface {
	IsOpen(t time.Time) bool
}

// AlwaysOpen is a Gate that never closes, for 24/7 deployments and tests.
type AlwaysOpen struct{}

// IsOpen always returns true.
func (AlwaysOpen) IsOpen(time.Time) bool { return true }

// Hours is the NYSE/Nasdaq regular session: Monday to Friday, 09:30 until
// 16:00 America/New_York. Exchange holidays are not modelled.
type Hours struct {
	loc *time.Location
}

// NewHours loads the exchange time zone.
func NewHours() (*Hours, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, err
	}
	return &Hours{loc: loc}, nil
}

// MustHours is NewHours that panics on error. The zone database is
// embedded, so it only fails on a broken build.
func MustHours() *Hours {
	h, err := NewHours()
	if err != nil {
		panic(err)
	}
	return h
}

// IsOpen reports whether t falls inside the regular session. The open is
// inclusive and the close exclusive.
func (h *Hours) IsOpen(t time.Time) bool {
	et := t.In(h.loc)
	if !tradingDay(et.Weekday()) {
		return false
	}
	m := et.Hour()*60 + et.Minute()
	return m >= openMinute && m < closeMinute
}

// NextOpen returns the next session open strictly after t, or t's own
// session open if t is earlier that day.
func (h *Hours) NextOpen(t time.Time) time.Time {
	et := t.In(h.loc)
	day := time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, h.loc)
	if !et.Before(day) || !tradingDay(et.Weekday()) {
		day = day.AddDate(0, 0, 1)
	}
	for !tradingDay(day.Weekday()) {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// UntilOpen returns how long until the next session open, zero while the
// market is open.
func (h *Hours) UntilOpen(t time.Time) time.Duration {
	if h.IsOpen(t) {
		return 0
	}
	return h.NextOpen(t).Sub(t)
}

func tradingDay(d time.Weekday) bool {
	return d != time.Saturday && d != time.Sunday
}
