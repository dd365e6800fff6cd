package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mcqweb/goosealerts/internal/models"
)

func TestFixtures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fixtures" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"fx-1","homeTeam":"Redtown","awayTeam":"Bluevale","startTime":"2026-08-28T15:00:00Z"},
			{"id":"","homeTeam":"NoID","awayTeam":"Dropped"}
		]`))
	}))
	defer srv.Close()

	c := NewClient("bookieA", srv.URL, time.Second)
	fixtures, err := c.Fixtures(context.Background())
	if err != nil {
		t.Fatalf("Fixtures: %v", err)
	}
	if len(fixtures) != 1 {
		t.Fatalf("got %d fixtures, want 1 (empty id dropped)", len(fixtures))
	}
	f := fixtures[0]
	if f.ID != "fx-1" || f.HomeTeam != "Redtown" || f.AwayTeam != "Bluevale" {
		t.Errorf("fixture = %+v", f)
	}
	if f.StartTime.IsZero() {
		t.Error("start time not parsed")
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fixtures/fx-1/quotes" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"name":"J. Smith","team":"Redtown","market":"anytime-to-score","side":"back","price":3.2,"observedAt":"2026-08-28T14:30:00Z"},
			{"name":"J. Smith","market":"anytime-to-score","side":"lay","price":2.9,"liquidity":50},
			{"name":"X. Unknown","market":"wins-the-toss","side":"back","price":2.0},
			{"name":"Y. Badside","market":"anytime-to-score","side":"middle","price":2.0}
		]`))
	}))
	defer srv.Close()

	c := NewClient("bookieA", srv.URL, time.Second)
	quotes, err := c.Fetch(context.Background(), models.Fixture{ID: "fx-1"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("got %d quotes, want 2 (unknown market and side skipped)", len(quotes))
	}

	back := quotes[0]
	if back.SourceID != "bookieA" || back.EntityName != "J. Smith" || back.TeamName != "Redtown" {
		t.Errorf("back quote = %+v", back)
	}
	if back.Side != models.Back || back.Price != 3.2 || back.HasLiquidity {
		t.Errorf("back quote = %+v", back)
	}

	lay := quotes[1]
	if lay.Side != models.Lay || !lay.HasLiquidity || lay.Liquidity != 50 {
		t.Errorf("lay quote = %+v", lay)
	}
	if lay.ObservedAt.IsZero() {
		t.Error("missing observedAt not defaulted")
	}
}

func TestDoRequest_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient("bookieA", srv.URL, time.Second)
	quotes, err := c.Fetch(context.Background(), models.Fixture{ID: "fx-1"})
	if err != nil {
		t.Fatalf("Fetch after retry: %v", err)
	}
	if len(quotes) != 0 {
		t.Errorf("quotes = %+v", quotes)
	}
	if hits.Load() != 2 {
		t.Errorf("made %d requests, want 2", hits.Load())
	}
}

func TestDoRequest_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("bookieA", srv.URL, time.Second)
	if _, err := c.Fetch(context.Background(), models.Fixture{ID: "fx-1"}); err == nil {
		t.Fatal("expected error on 404")
	}
	if hits.Load() != 1 {
		t.Errorf("made %d requests, want 1 (4xx is not retried)", hits.Load())
	}
}
