// Package alerting decides, per destination, whether an opportunity is
// a new alert, an improved re-alert, or already handled, and persists
// the outcome only after delivery is confirmed.
package alerting

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mcqweb/goosealerts/internal/models"
	"github.com/mcqweb/goosealerts/internal/storage"
)

// Engine is the dedup/re-alert state machine over the durable alert
// record store. The read-decide-write sequence for one (entity, market,
// destination) key is serialized on a per-key mutex; different keys are
// fully independent.
type Engine struct {
	store *storage.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	batchMu sync.Mutex
	batches map[string]*summaryBatch
}

type summaryBatch struct {
	destination models.Destination
	requests    map[string]models.NotificationRequest // keyed by entity|market, newest wins
}

// Batch is a summary flush unit for one destination.
type Batch struct {
	Destination models.Destination
	Requests    []models.NotificationRequest
}

// NewEngine creates an engine over the given store.
func NewEngine(store *storage.Store) *Engine {
	return &Engine{
		store:   store,
		locks:   make(map[string]*sync.Mutex),
		batches: make(map[string]*summaryBatch),
	}
}

func (e *Engine) lockFor(key string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	return l
}

// Decide maps an opportunity and its classification onto the closed set
// of actions. It never mutates state: persistence happens in Confirm,
// after the caller has a delivery ack in hand.
func (e *Engine) Decide(opp *models.Opportunity, dest models.Destination, cls models.Classification) (models.Decision, error) {
	if !cls.Meets {
		return models.Decision{Action: models.ActionNotQualified}, nil
	}

	l := e.lockFor(opp.Key(dest.ID))
	l.Lock()
	defer l.Unlock()

	rec, err := e.store.GetAlertRecord(opp.Entity.ID, opp.Market, dest.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Decision{Action: models.ActionNew}, nil
	}
	if err != nil {
		return models.Decision{}, fmt.Errorf("loading alert record: %w", err)
	}

	if !dest.AllowReAlert {
		return models.Decision{Action: models.ActionSuppressed}, nil
	}
	delta := opp.Rating - rec.LastAlertedRating
	if delta >= dest.ReAlertRatingDelta {
		return models.Decision{Action: models.ActionReAlert, Delta: delta}, nil
	}
	return models.Decision{Action: models.ActionSuppressed}, nil
}

// Confirm durably records a delivered alert. Call it only after the
// destination acknowledged the send: a crash before Confirm means the
// opportunity is retried next cycle, which is the accepted
// at-least-once behavior.
func (e *Engine) Confirm(opp *models.Opportunity, dest models.Destination, at time.Time) error {
	l := e.lockFor(opp.Key(dest.ID))
	l.Lock()
	defer l.Unlock()

	rec := &models.AlertRecord{
		EntityID:          opp.Entity.ID,
		Market:            opp.Market,
		DestinationID:     dest.ID,
		LastAlertedAt:     at,
		LastAlertedRating: opp.Rating,
	}
	if err := e.store.UpsertAlertRecord(rec); err != nil {
		return fmt.Errorf("persisting alert record: %w", err)
	}
	return nil
}

// QueueSummary accumulates a qualifying opportunity for a summary-mode
// destination instead of sending it immediately. A newer request for
// the same (entity, market) replaces the queued one.
func (e *Engine) QueueSummary(dest models.Destination, req models.NotificationRequest) {
	e.batchMu.Lock()
	defer e.batchMu.Unlock()
	b, ok := e.batches[dest.ID]
	if !ok {
		b = &summaryBatch{
			destination: dest,
			requests:    make(map[string]models.NotificationRequest),
		}
		e.batches[dest.ID] = b
	}
	b.requests[req.Opportunity.Entity.ID+"|"+string(req.Opportunity.Market)] = req
}

// FlushDue pops and returns every batch whose destination is allowed to
// flush: its summaryRefreshInterval has elapsed since the last recorded
// flush. Popped batches that fail to send are simply rebuilt by later
// cycles, keeping the at-least-once contract.
func (e *Engine) FlushDue(now time.Time) ([]Batch, error) {
	e.batchMu.Lock()
	defer e.batchMu.Unlock()

	var due []Batch
	for destID, b := range e.batches {
		if len(b.requests) == 0 {
			continue
		}
		lastSent, err := e.store.LastSummarySentAt(destID)
		if err != nil {
			return nil, fmt.Errorf("loading summary state for %q: %w", destID, err)
		}
		if !lastSent.IsZero() && now.Sub(lastSent) < b.destination.SummaryRefreshInterval {
			continue
		}
		reqs := make([]models.NotificationRequest, 0, len(b.requests))
		for _, r := range b.requests {
			reqs = append(reqs, r)
		}
		sort.Slice(reqs, func(i, j int) bool {
			return reqs[i].Opportunity.Rating > reqs[j].Opportunity.Rating
		})
		due = append(due, Batch{Destination: b.destination, Requests: reqs})
		delete(e.batches, destID)
	}
	return due, nil
}

// ConfirmSummary records a successfully delivered batch: every included
// opportunity's alert record advances exactly as in the immediate path,
// and the destination's flush timestamp is updated.
func (e *Engine) ConfirmSummary(dest models.Destination, reqs []models.NotificationRequest, at time.Time) error {
	for _, req := range reqs {
		if err := e.Confirm(req.Opportunity, dest, at); err != nil {
			return err
		}
	}
	if err := e.store.SetLastSummarySentAt(dest.ID, at); err != nil {
		return fmt.Errorf("recording summary flush for %q: %w", dest.ID, err)
	}
	return nil
}

// PurgeBefore drops alert records last touched before cutoff so the
// table does not grow with long-finished fixtures.
func (e *Engine) PurgeBefore(cutoff time.Time) (int64, error) {
	return e.store.PurgeAlertRecordsBefore(cutoff)
}
