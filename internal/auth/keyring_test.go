package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/offline-sync/internal/models"
)

func TestKeyRing_DerivesPerFestival(t *testing.T) {
	k := NewKeyRing([]byte("master"))

	a1, err := k.Secret("fest-a")
	require.NoError(t, err)
	a2, err := k.Secret("fest-a")
	require.NoError(t, err)
	b, err := k.Secret("fest-b")
	require.NoError(t, err)

	assert.Len(t, a1, 32)
	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)

	other, err := NewKeyRing([]byte("master")).Secret("fest-a")
	require.NoError(t, err)
	assert.Equal(t, a1, other, "derivation is deterministic across processes")
}

func TestKeyRing_Provisioned(t *testing.T) {
	k := NewKeyRing([]byte("master"))
	derived, err := k.Secret("fest-a")
	require.NoError(t, err)

	k.Provision("fest-a", []byte("pinned"))
	got, err := k.Secret("fest-a")
	require.NoError(t, err)
	assert.Equal(t, []byte("pinned"), got)

	k.Provision("fest-a", nil)
	got, err = k.Secret("fest-a")
	require.NoError(t, err)
	assert.Equal(t, derived, got)
}

func TestKeyRing_Errors(t *testing.T) {
	_, err := NewKeyRing([]byte("master")).Secret(" ")
	require.ErrorIs(t, err, ErrNoSecret)

	_, err = NewKeyRing(nil).Secret("fest-a")
	require.ErrorIs(t, err, ErrNoSecret)
}

func TestKeyRing_SignaturesDoNotCrossFestivals(t *testing.T) {
	s := NewSigner(NewKeyRing([]byte("master")))
	ts := time.Unix(1_780_000_000, 0)
	sig, err := s.SignFields("fest-a", "l-1", "w-1", 100, models.OfflinePurchase, ts)
	require.NoError(t, err)

	tx := models.OfflineTransaction{LocalID: "l-1", WalletID: "w-1", Amount: 100, Type: models.OfflinePurchase, Timestamp: ts, Signature: sig}
	require.NoError(t, s.VerifyTransaction("fest-a", tx))
	require.ErrorIs(t, s.VerifyTransaction("fest-b", tx), models.ErrInvalidSignature)
}
