package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/baharkarakas/offline-sync/internal/models"
)

var ErrNoSecret = errors.New("no signing secret available")

// SecretSource resolves the key offline transactions of a festival are
// signed with.
type SecretSource interface {
	Secret(festivalID string) ([]byte, error)
}

// StaticSecret serves the same secret to every festival.
type StaticSecret []byte

func (s StaticSecret) Secret(string) ([]byte, error) {
	if len(s) == 0 {
		return nil, ErrNoSecret
	}
	return s, nil
}

// CanonicalMessage builds "localId:walletId:amount:TYPE:unixSeconds".
func CanonicalMessage(localID, walletID string, amount int64, typ models.OfflineTxType, ts time.Time) string {
	var b strings.Builder
	b.WriteString(localID)
	b.WriteByte(':')
	b.WriteString(walletID)
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(amount, 10))
	b.WriteByte(':')
	b.WriteString(strings.ToUpper(string(typ)))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(ts.Unix(), 10))
	return b.String()
}

// Sign returns base64(HMAC-SHA256(secret, canonical message)).
func Sign(localID, walletID string, amount int64, typ models.OfflineTxType, ts time.Time, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(CanonicalMessage(localID, walletID, amount, typ, ts)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature of tx and compares it in constant time.
// An empty signature never verifies.
func Verify(tx models.OfflineTransaction, secret []byte) bool {
	if tx.Signature == "" || len(secret) == 0 {
		return false
	}
	want := Sign(tx.LocalID, tx.WalletID, tx.Amount, tx.Type, tx.Timestamp, secret)
	return hmac.Equal([]byte(want), []byte(tx.Signature))
}

// Signer binds the codec to a secret source so call sites never handle keys.
type Signer struct {
	secrets SecretSource
}

func NewSigner(src SecretSource) *Signer {
	return &Signer{secrets: src}
}

// SignFields produces the signature a device needs for a transaction template.
func (s *Signer) SignFields(festivalID, localID, walletID string, amount int64, typ models.OfflineTxType, ts time.Time) (string, error) {
	secret, err := s.secrets.Secret(festivalID)
	if err != nil {
		return "", fmt.Errorf("signing secret for festival %q: %w", festivalID, err)
	}
	return Sign(localID, walletID, amount, typ, ts, secret), nil
}

// VerifyTransaction returns models.ErrInvalidSignature for a missing or
// mismatched signature, including when no secret is known for the festival.
func (s *Signer) VerifyTransaction(festivalID string, tx models.OfflineTransaction) error {
	secret, err := s.secrets.Secret(festivalID)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidSignature, err)
	}
	if !Verify(tx, secret) {
		return models.ErrInvalidSignature
	}
	return nil
}
