// Package classifier evaluates opportunities against per-destination
// threshold rules.
package classifier

import (
	"github.com/mcqweb/goosealerts/internal/models"
)

// Classify evaluates one opportunity against every destination. A
// destination passes only if all of its thresholds hold; on rejection
// every failing predicate is reported so operators can see which
// criterion was closest to passing.
func Classify(opp *models.Opportunity, destinations []models.Destination) map[string]models.Classification {
	out := make(map[string]models.Classification, len(destinations))
	for _, d := range destinations {
		out[d.ID] = classifyOne(opp, d)
	}
	return out
}

func classifyOne(opp *models.Opportunity, d models.Destination) models.Classification {
	var reasons []models.RejectReason
	if opp.BestLay.Price < d.MinLayOdds {
		reasons = append(reasons, models.RejectLayOddsBelowMin)
	}
	if opp.BestBack.Price < d.MinBackOdds {
		reasons = append(reasons, models.RejectBackOddsBelowMin)
	}
	if opp.Rating < d.MinRating {
		reasons = append(reasons, models.RejectRatingBelowMin)
	}
	if opp.MinutesToStart > d.MaxMinutesToStart {
		reasons = append(reasons, models.RejectTooFarFromStart)
	}
	// Sources that expose no depth are given the benefit of the doubt.
	if opp.BestLay.HasLiquidity && opp.BestLay.Liquidity < d.MinLiquidity {
		reasons = append(reasons, models.RejectLiquidityBelowMin)
	}
	return models.Classification{Meets: len(reasons) == 0, Reasons: reasons}
}
