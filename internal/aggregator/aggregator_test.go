package aggregator

import (
	"math"
	"testing"
	"time"

	"github.com/mcqweb/goosealerts/internal/models"
)

var (
	testEntity  = &models.CanonicalEntity{ID: "james smith", DisplayName: "James Smith"}
	testFixture = models.Fixture{ID: "fx-1", HomeTeam: "Redtown", AwayTeam: "Bluevale"}
)

func quote(source string, side models.Side, price float64, observedAt time.Time) models.Quote {
	return models.Quote{
		SourceID:   source,
		EntityName: "James Smith",
		Market:     models.MarketAnytimeToScore,
		Side:       side,
		Price:      price,
		ObservedAt: observedAt,
	}
}

func withLiquidity(q models.Quote, liq float64) models.Quote {
	q.Liquidity = liq
	q.HasLiquidity = true
	return q
}

func TestAggregate_BestPerSideAndRating(t *testing.T) {
	now := time.Now()
	quotes := []models.Quote{
		quote("a", models.Back, 2.0, now),
		quote("b", models.Back, 2.5, now),
		quote("c", models.Lay, 3.0, now),
		quote("d", models.Lay, 2.8, now),
	}
	opp := Aggregate(testEntity, models.MarketAnytimeToScore, testFixture, quotes, time.Minute, now)
	if opp == nil {
		t.Fatal("expected opportunity")
	}
	if opp.BestBack.Price != 2.5 || opp.BestBack.SourceID != "b" {
		t.Errorf("best back = %.2f from %s", opp.BestBack.Price, opp.BestBack.SourceID)
	}
	if opp.BestLay.Price != 2.8 || opp.BestLay.SourceID != "d" {
		t.Errorf("best lay = %.2f from %s", opp.BestLay.Price, opp.BestLay.SourceID)
	}
	want := 2.5 / 2.8 * 100
	if math.Abs(opp.Rating-want) > 0.001 {
		t.Errorf("rating = %f, want %f", opp.Rating, want)
	}
	if len(opp.Quotes) != 4 {
		t.Errorf("opportunity carries %d quotes, want all 4", len(opp.Quotes))
	}
}

func TestAggregate_StaleQuoteExcluded(t *testing.T) {
	now := time.Now()
	quotes := []models.Quote{
		quote("a", models.Back, 9.9, now.Add(-2*time.Minute)), // numerically best but stale
		quote("b", models.Back, 2.5, now),
		quote("c", models.Lay, 2.8, now),
	}
	opp := Aggregate(testEntity, models.MarketAnytimeToScore, testFixture, quotes, time.Minute, now)
	if opp == nil {
		t.Fatal("expected opportunity")
	}
	if opp.BestBack.Price != 2.5 {
		t.Errorf("stale quote selected: best back = %.2f", opp.BestBack.Price)
	}
	if len(opp.Quotes) != 2 {
		t.Errorf("stale quote kept in list: %d quotes", len(opp.Quotes))
	}
}

func TestAggregate_RequiresBothSides(t *testing.T) {
	now := time.Now()
	backOnly := []models.Quote{quote("a", models.Back, 2.5, now)}
	if opp := Aggregate(testEntity, models.MarketAnytimeToScore, testFixture, backOnly, time.Minute, now); opp != nil {
		t.Error("opportunity built from back side only")
	}
	layOnly := []models.Quote{quote("a", models.Lay, 2.8, now)}
	if opp := Aggregate(testEntity, models.MarketAnytimeToScore, testFixture, layOnly, time.Minute, now); opp != nil {
		t.Error("opportunity built from lay side only")
	}
	if opp := Aggregate(testEntity, models.MarketAnytimeToScore, testFixture, nil, time.Minute, now); opp != nil {
		t.Error("opportunity built from no quotes")
	}
}

func TestAggregate_AllQuotesStale(t *testing.T) {
	now := time.Now()
	quotes := []models.Quote{
		quote("a", models.Back, 2.5, now.Add(-time.Hour)),
		quote("b", models.Lay, 2.8, now.Add(-time.Hour)),
	}
	if opp := Aggregate(testEntity, models.MarketAnytimeToScore, testFixture, quotes, time.Minute, now); opp != nil {
		t.Error("expected nil for all-stale quotes")
	}
}

func TestAggregate_BackTiePrefersKnownLiquidity(t *testing.T) {
	now := time.Now()
	quotes := []models.Quote{
		quote("nodepth", models.Back, 2.5, now),
		withLiquidity(quote("depth", models.Back, 2.5, now), 100),
		quote("l", models.Lay, 2.8, now),
	}
	opp := Aggregate(testEntity, models.MarketAnytimeToScore, testFixture, quotes, time.Minute, now)
	if opp.BestBack.SourceID != "depth" {
		t.Errorf("back tie broke to %s, want depth-providing source", opp.BestBack.SourceID)
	}
}

func TestAggregate_LayTiePrefersDeeperLiquidity(t *testing.T) {
	now := time.Now()
	quotes := []models.Quote{
		quote("b", models.Back, 3.0, now),
		withLiquidity(quote("shallow", models.Lay, 2.8, now), 20),
		withLiquidity(quote("deep", models.Lay, 2.8, now), 200),
	}
	opp := Aggregate(testEntity, models.MarketAnytimeToScore, testFixture, quotes, time.Minute, now)
	if opp.BestLay.SourceID != "deep" {
		t.Errorf("lay tie broke to %s, want deeper source", opp.BestLay.SourceID)
	}
	if opp.BestLay.Liquidity != 200 {
		t.Errorf("lay liquidity = %.0f", opp.BestLay.Liquidity)
	}
}

func TestAggregate_MinutesToStart(t *testing.T) {
	now := time.Now()
	fixture := models.Fixture{ID: "fx-2", StartTime: now.Add(45 * time.Minute)}
	quotes := []models.Quote{
		quote("a", models.Back, 2.5, now),
		quote("b", models.Lay, 2.8, now),
	}
	opp := Aggregate(testEntity, models.MarketAnytimeToScore, fixture, quotes, time.Minute, now)
	if opp.MinutesToStart != 45 {
		t.Errorf("minutes to start = %d, want 45", opp.MinutesToStart)
	}
}
