package ledger

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tributeboard/internal/model"
)

func confirmed(sig string, usd float64) model.PaymentOutcome {
	return model.PaymentOutcome{
		Status:        model.OutcomeConfirmed,
		Signature:     sig,
		SettledAmount: usd / 2,
		SettledUSD:    usd,
	}
}

func TestRecordConfirmedAppendsOncePerSignature(t *testing.T) {
	r := NewReconciler(zerolog.Nop())

	first := r.RecordConfirmed("alice", "TON", confirmed("sig-1", 10))
	dup := r.RecordConfirmed("alice", "TON", confirmed("sig-1", 999))

	assert.Equal(t, first, dup)

	records := r.Records("alice")
	require.Len(t, records, 1)
	assert.Equal(t, 10.0, records[0].USDValue)
	assert.Equal(t, "confirmed", records[0].Status)
}

func TestRecordsAreScopedToPayer(t *testing.T) {
	r := NewReconciler(zerolog.Nop())

	r.RecordConfirmed("alice", "TON", confirmed("sig-1", 10))
	r.RecordConfirmed("bob", "TON", confirmed("sig-2", 20))

	assert.Len(t, r.Records("alice"), 1)
	assert.Len(t, r.Records("bob"), 1)
	assert.Empty(t, r.Records("carol"))
}

func TestMergeShowsLocalProgressBeforeBoardCatchesUp(t *testing.T) {
	r := NewReconciler(zerolog.Nop())
	r.RecordConfirmed("alice", "TON", confirmed("sig-1", 25))

	remote := &model.LeaderboardEntry{Address: "alice", TotalUSD: 10, Count: 1}
	merged := r.MergeForUser("alice", remote)

	assert.Equal(t, 25.0, merged.TotalUSD)
	assert.Equal(t, 1, merged.Count)

	// Board has not covered the local sum, so nothing is superseded.
	for _, rec := range r.Records("alice") {
		assert.False(t, rec.Superseded)
	}
}

func TestMergeNeverDoubleCounts(t *testing.T) {
	r := NewReconciler(zerolog.Nop())
	r.RecordConfirmed("alice", "TON", confirmed("sig-1", 25))

	// Board caught up: its total already includes the local record.
	remote := &model.LeaderboardEntry{Address: "alice", TotalUSD: 25, Count: 1}
	merged := r.MergeForUser("alice", remote)

	assert.Equal(t, 25.0, merged.TotalUSD)
}

func TestMergeSupersedesLocalRecordsOnceBoardCovers(t *testing.T) {
	r := NewReconciler(zerolog.Nop())
	r.RecordConfirmed("alice", "TON", confirmed("sig-1", 25))

	remote := &model.LeaderboardEntry{Address: "alice", TotalUSD: 30, Count: 2}
	r.MergeForUser("alice", remote)

	records := r.Records("alice")
	require.Len(t, records, 1)
	assert.True(t, records[0].Superseded)
}

func TestMergeIsIdempotent(t *testing.T) {
	r := NewReconciler(zerolog.Nop())
	r.RecordConfirmed("alice", "TON", confirmed("sig-1", 25))

	remote := &model.LeaderboardEntry{Address: "alice", TotalUSD: 30, Count: 2}
	first := r.MergeForUser("alice", remote)
	second := r.MergeForUser("alice", remote)

	assert.Equal(t, first, second)
	assert.Len(t, r.Records("alice"), 1)
}

func TestMergeWithNoRemoteRow(t *testing.T) {
	r := NewReconciler(zerolog.Nop())
	before := time.Now()
	r.RecordConfirmed("alice", "TON", confirmed("sig-1", 25))

	merged := r.MergeForUser("alice", nil)

	assert.Equal(t, "alice", merged.Address)
	assert.Equal(t, 25.0, merged.TotalUSD)
	assert.Equal(t, 1, merged.Count)
	assert.False(t, merged.FirstTributeAt.Before(before))
}

func TestMergeWithNoLocalRecords(t *testing.T) {
	r := NewReconciler(zerolog.Nop())

	remote := &model.LeaderboardEntry{Address: "alice", TotalUSD: 40, Count: 3}
	merged := r.MergeForUser("alice", remote)

	assert.Equal(t, *remote, merged)
}
