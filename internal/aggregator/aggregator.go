// Package aggregator merges same-outcome quotes from any number of
// sources into a single best-price-per-side opportunity.
package aggregator

import (
	"time"

	"github.com/mcqweb/goosealerts/internal/models"
)

// Aggregate filters quotes to the freshness window and selects the best
// price per side. It returns nil when either side has no surviving
// quote: an opportunity needs both a back and a lay observation.
//
// Best back is the highest price (ties prefer known liquidity); best
// lay is the lowest price (ties prefer deeper liquidity). A quote
// outside the window is excluded outright, never down-weighted.
func Aggregate(entity *models.CanonicalEntity, market models.Market, fixture models.Fixture,
	quotes []models.Quote, freshnessWindow time.Duration, now time.Time) *models.Opportunity {

	cutoff := now.Add(-freshnessWindow)
	fresh := make([]models.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.ObservedAt.Before(cutoff) {
			continue
		}
		fresh = append(fresh, q)
	}
	if len(fresh) == 0 {
		return nil
	}

	var back, lay *models.Quote
	for i := range fresh {
		q := &fresh[i]
		switch q.Side {
		case models.Back:
			if back == nil || betterBack(q, back) {
				back = q
			}
		case models.Lay:
			if lay == nil || betterLay(q, lay) {
				lay = q
			}
		}
	}
	if back == nil || lay == nil {
		return nil
	}

	return &models.Opportunity{
		Entity:  entity,
		Market:  market,
		Fixture: fixture,
		BestBack: models.PricePoint{
			Price:        back.Price,
			SourceID:     back.SourceID,
			Liquidity:    back.Liquidity,
			HasLiquidity: back.HasLiquidity,
		},
		BestLay: models.PricePoint{
			Price:        lay.Price,
			SourceID:     lay.SourceID,
			Liquidity:    lay.Liquidity,
			HasLiquidity: lay.HasLiquidity,
		},
		Rating:         back.Price / lay.Price * 100,
		MinutesToStart: fixture.MinutesToStart(now),
		Quotes:         fresh,
	}
}

func betterBack(q, cur *models.Quote) bool {
	if q.Price != cur.Price {
		return q.Price > cur.Price
	}
	return q.HasLiquidity && !cur.HasLiquidity
}

func betterLay(q, cur *models.Quote) bool {
	if q.Price != cur.Price {
		return q.Price < cur.Price
	}
	if q.HasLiquidity != cur.HasLiquidity {
		return q.HasLiquidity
	}
	return q.Liquidity > cur.Liquidity
}
