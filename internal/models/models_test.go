package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextJobStatus(t *testing.T) {
	assert.Equal(t, JobStatusPendingAcceptance, NextJobStatus(JobStatusSearching))
	assert.Equal(t, JobStatusAccepted, NextJobStatus(JobStatusPendingAcceptance))
	assert.Equal(t, JobStatusEnRoute, NextJobStatus(JobStatusAccepted))
	assert.Equal(t, JobStatusCompleted, NextJobStatus(JobStatusPaymentPending))

	// Терминальные и неизвестные статусы не имеют следующего.
	assert.Equal(t, "", NextJobStatus(JobStatusCompleted))
	assert.Equal(t, "", NextJobStatus(JobStatusCancelled))
	assert.Equal(t, "", NextJobStatus("teleported"))
}

func TestIsTerminalJobStatus(t *testing.T) {
	assert.True(t, IsTerminalJobStatus(JobStatusCompleted))
	assert.True(t, IsTerminalJobStatus(JobStatusCancelled))
	assert.False(t, IsTerminalJobStatus(JobStatusSearching))
	assert.False(t, IsTerminalJobStatus(JobStatusPaymentPending))
}

func TestJobOffer_LazyExpiry(t *testing.T) {
	now := time.Now()
	offer := JobOffer{Status: OfferStatusPending, ExpiresAt: now.Add(-time.Minute)}

	assert.True(t, offer.IsExpired(now))
	assert.Equal(t, OfferStatusExpired, offer.EffectiveStatus(now))
	// Хранимый статус не меняется, пересчёт только при чтении.
	assert.Equal(t, OfferStatusPending, offer.Status)

	// Обработанные офферы не истекают.
	declined := JobOffer{Status: OfferStatusDeclined, ExpiresAt: now.Add(-time.Hour)}
	assert.False(t, declined.IsExpired(now))
	assert.Equal(t, OfferStatusDeclined, declined.EffectiveStatus(now))
}

func TestEscrowTransaction_IsReleasable(t *testing.T) {
	now := time.Now()

	due := EscrowTransaction{Status: EscrowStatusHeldInEscrow, ReleaseDate: now.Add(-time.Hour)}
	assert.True(t, due.IsReleasable(now))

	notDue := EscrowTransaction{Status: EscrowStatusHeldInEscrow, ReleaseDate: now.Add(time.Hour)}
	assert.False(t, notDue.IsReleasable(now))

	paid := EscrowTransaction{Status: EscrowStatusPaidOut, ReleaseDate: now.Add(-time.Hour)}
	assert.False(t, paid.IsReleasable(now))
}

func TestProviderSnapshot(t *testing.T) {
	rating := 4.8
	p := Provider{Name: "Сергей", Phone: "+49111", Rating: &rating, JobsDone: 17}

	snap := p.Snapshot()
	assert.Equal(t, "Сергей", snap.Name)
	assert.Equal(t, 17, snap.JobsDone)
	assert.Equal(t, &rating, snap.Rating)
}
