package models

import (
	"errors"
	"fmt"
	"time"
)

// Destination is a notification target with its own qualification
// thresholds and dedup policy, loaded from configuration.
type Destination struct {
	ID                     string
	ChatID                 string // Telegram chat the destination delivers to
	MinLayOdds             float64
	MinBackOdds            float64
	MinRating              float64
	MinLiquidity           float64
	MaxMinutesToStart      int
	AllowReAlert           bool
	ReAlertRatingDelta     float64
	SummaryMode            bool
	SummaryRefreshInterval time.Duration
}

// Validate checks destination field constraints.
func (d *Destination) Validate() error {
	if d.ID == "" {
		return errors.New("destination ID must not be empty")
	}
	if d.ChatID == "" {
		return errors.New("destination chat ID must not be empty")
	}
	if d.MinLayOdds < 0 || d.MinBackOdds < 0 || d.MinRating < 0 || d.MinLiquidity < 0 {
		return errors.New("destination thresholds must not be negative")
	}
	if d.MaxMinutesToStart <= 0 {
		return errors.New("destination max minutes to start must be positive")
	}
	if d.AllowReAlert && d.ReAlertRatingDelta <= 0 {
		return errors.New("re-alert rating delta must be positive when re-alerts are allowed")
	}
	if d.SummaryMode && d.SummaryRefreshInterval <= 0 {
		return errors.New("summary refresh interval must be positive in summary mode")
	}
	return nil
}

// RejectReason names the specific threshold an opportunity failed.
// Operators tune thresholds interactively and need to know which
// criterion was closest to passing, not just a boolean.
type RejectReason string

const (
	RejectLayOddsBelowMin   RejectReason = "lay odds below minimum"
	RejectBackOddsBelowMin  RejectReason = "back odds below minimum"
	RejectRatingBelowMin    RejectReason = "rating below minimum"
	RejectLiquidityBelowMin RejectReason = "lay liquidity below minimum"
	RejectTooFarFromStart   RejectReason = "fixture too far from start"
)

// Classification is the result of evaluating an opportunity against
// one destination's thresholds.
type Classification struct {
	Meets   bool
	Reasons []RejectReason // populated only on rejection
}

// AlertRecord is the durable row preventing duplicate notifications,
// keyed by (entity, market, destination). It is the only state that
// must survive a process restart.
type AlertRecord struct {
	EntityID          string
	Market            Market
	DestinationID     string
	LastAlertedAt     time.Time
	LastAlertedRating float64
}

// Action is the closed set of alert-state decisions.
type Action int

const (
	ActionNotQualified Action = iota
	ActionNew
	ActionReAlert
	ActionSuppressed
)

func (a Action) String() string {
	switch a {
	case ActionNotQualified:
		return "not-qualified"
	case ActionNew:
		return "new"
	case ActionReAlert:
		return "re-alert"
	case ActionSuppressed:
		return "suppressed"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decision is the outcome of evaluating one opportunity against one
// destination's alert state.
type Decision struct {
	Action Action
	Delta  float64 // rating improvement over the last alert, re-alerts only
}

// NotificationRequest is what the core hands a notifier for delivery.
// The notifier's ack gates AlertRecord persistence.
type NotificationRequest struct {
	ID          string
	Destination Destination
	Opportunity *Opportunity
	IsReAlert   bool
	Delta       float64
}
