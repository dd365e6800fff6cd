// Package models defines the core domain entities: quotes, fixtures,
// opportunities, canonical identities, destinations, and alert records.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Side is the side of a price: back (buy the outcome) or lay (sell it).
type Side int

const (
	Back Side = iota
	Lay
)

func (s Side) String() string {
	switch s {
	case Back:
		return "back"
	case Lay:
		return "lay"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// ParseSide parses "back" or "lay".
func ParseSide(s string) (Side, error) {
	switch s {
	case "back":
		return Back, nil
	case "lay":
		return Lay, nil
	default:
		return 0, fmt.Errorf("unknown side: %q", s)
	}
}

// Market identifies a betting market for an outcome.
type Market string

const (
	MarketFirstToScore    Market = "first-to-score"
	MarketAnytimeToScore  Market = "anytime-to-score"
	MarketToScoreOrAssist Market = "to-score-or-assist"
	MarketShotsOnTarget   Market = "shots-on-target"
)

// Markets lists every known market.
func Markets() []Market {
	return []Market{MarketFirstToScore, MarketAnytimeToScore, MarketToScoreOrAssist, MarketShotsOnTarget}
}

// ParseMarket parses a market identifier string.
func ParseMarket(s string) (Market, error) {
	for _, m := range Markets() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown market: %q", s)
}

// Quote is one price observation from one source. Quotes are ephemeral:
// they live for a single aggregation pass and are never persisted.
type Quote struct {
	SourceID     string
	EntityName   string // raw outcome name as the source spells it
	TeamName     string // optional team context for entity resolution
	Market       Market
	Side         Side
	Price        float64 // decimal odds
	Liquidity    float64 // monetary depth; meaningful only if HasLiquidity
	HasLiquidity bool
	ObservedAt   time.Time
}

// Validate checks quote field constraints.
func (q *Quote) Validate() error {
	if q.SourceID == "" {
		return errors.New("quote source ID must not be empty")
	}
	if q.EntityName == "" {
		return errors.New("quote entity name must not be empty")
	}
	if q.Market == "" {
		return errors.New("quote market must not be empty")
	}
	if q.Price <= 1.0 {
		return errors.New("quote price must be greater than 1.0")
	}
	if q.HasLiquidity && q.Liquidity < 0 {
		return errors.New("quote liquidity must not be negative")
	}
	if q.ObservedAt.IsZero() {
		return errors.New("quote observation time must be set")
	}
	return nil
}

// Fixture is the real-world event a quote belongs to. Home and away
// team names double as resolver context.
type Fixture struct {
	ID        string
	HomeTeam  string
	AwayTeam  string
	StartTime time.Time
}

// MinutesToStart reports how far away kickoff is, rounded down.
// Negative once the fixture has started.
func (f Fixture) MinutesToStart(now time.Time) int {
	return int(f.StartTime.Sub(now) / time.Minute)
}

// PricePoint is a selected best price with its provenance.
type PricePoint struct {
	Price        float64
	SourceID     string
	Liquidity    float64
	HasLiquidity bool
}

// Opportunity is the merged best-price view for one (entity, market,
// fixture). Rebuilt every poll cycle, never persisted.
type Opportunity struct {
	Entity         *CanonicalEntity
	Market         Market
	Fixture        Fixture
	BestBack       PricePoint
	BestLay        PricePoint
	Rating         float64 // BestBack.Price / BestLay.Price * 100
	MinutesToStart int
	Quotes         []Quote // all quotes that survived the freshness filter
}

// Key identifies the opportunity for alert-state lookups.
func (o *Opportunity) Key(destinationID string) string {
	return o.Entity.ID + "|" + string(o.Market) + "|" + destinationID
}
