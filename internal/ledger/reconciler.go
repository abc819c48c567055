package ledger

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tributeboard/internal/model"
)

// Reconciler keeps the append-only record of this client's own
// confirmed tributes and merges it with the board ledger, so a payment
// that just landed is visible immediately even while the board is
// still catching up.
type Reconciler struct {
	mu      sync.RWMutex
	records []model.LocalDepositRecord
	bySig   map[string]int
	log     zerolog.Logger
}

func NewReconciler(log zerolog.Logger) *Reconciler {
	return &Reconciler{
		bySig: make(map[string]int),
		log:   log.With().Str("component", "reconciler").Logger(),
	}
}

// RecordConfirmed appends a record for a confirmed outcome. Failed and
// cancelled outcomes never produce records. A signature is appended at
// most once; the first record wins and is never overwritten.
func (r *Reconciler) RecordConfirmed(payer, asset string, outcome model.PaymentOutcome) model.LocalDepositRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, exists := r.bySig[outcome.Signature]; exists {
		return r.records[idx]
	}

	rec := model.LocalDepositRecord{
		Signature: outcome.Signature,
		Payer:     payer,
		Asset:     asset,
		Amount:    outcome.SettledAmount,
		USDValue:  outcome.SettledUSD,
		Timestamp: time.Now(),
		Status:    "confirmed",
	}
	r.bySig[rec.Signature] = len(r.records)
	r.records = append(r.records, rec)

	r.log.Info().Str("signature", rec.Signature).Float64("usd", rec.USDValue).Msg("local deposit recorded")
	return rec
}

// Records returns a copy of the records for one payer
func (r *Reconciler) Records(payer string) []model.LocalDepositRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.LocalDepositRecord
	for _, rec := range r.records {
		if rec.Payer == payer {
			out = append(out, rec)
		}
	}
	return out
}

// MergeForUser folds the payer's local records into their board row.
// Effective totals take the max of remote and local: once the board
// has caught up its total already covers the local records, so max
// never double-counts, while a not-yet-synced tribute still shows as
// progress. When the remote total covers the local sum, the local
// records are marked superseded (kept, not deleted).
func (r *Reconciler) MergeForUser(identity string, remote *model.LeaderboardEntry) model.LeaderboardEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var localUSD float64
	var localCount int
	var earliest, latest time.Time
	for _, rec := range r.records {
		if rec.Payer != identity {
			continue
		}
		localUSD += rec.USDValue
		localCount++
		if earliest.IsZero() || rec.Timestamp.Before(earliest) {
			earliest = rec.Timestamp
		}
		if rec.Timestamp.After(latest) {
			latest = rec.Timestamp
		}
	}

	entry := model.LeaderboardEntry{Address: identity}
	if remote != nil {
		entry = *remote
	}

	if localUSD > entry.TotalUSD {
		entry.TotalUSD = localUSD
	}
	if localCount > entry.Count {
		entry.Count = localCount
	}
	if entry.FirstTributeAt.IsZero() && !earliest.IsZero() {
		entry.FirstTributeAt = earliest
	}
	if latest.After(entry.LastTributeAt) {
		entry.LastTributeAt = latest
	}

	if remote != nil && localUSD > 0 && remote.TotalUSD >= localUSD {
		for i := range r.records {
			if r.records[i].Payer == identity {
				r.records[i].Superseded = true
			}
		}
	}

	return entry
}
