package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SnapshotDateFormat is the calendar-date key used for all snapshot rows
const SnapshotDateFormat = "2006-01-02"

// SnapshotDateOf returns the calendar-date key for an instant, in that
// instant's location.
func SnapshotDateOf(t time.Time) string {
	return t.Format(SnapshotDateFormat)
}

// TickerSnapshot is the point-in-time value of a single holding on a given
// date. Ticker is NULL for manually valued holdings; the row still
// participates in the per-account aggregation.
type TickerSnapshot struct {
	ID           uuid.UUID
	SnapshotDate string // YYYY-MM-DD
	AccountID    uuid.UUID
	Ticker       *string
	Name         string
	Value        decimal.Decimal
}

// AccountSnapshot is the aggregated value of one account on a given date,
// derived from the TickerSnapshot rows written for that date.
type AccountSnapshot struct {
	ID           uuid.UUID
	SnapshotDate string // YYYY-MM-DD
	AccountID    uuid.UUID
	TotalValue   decimal.Decimal
}
