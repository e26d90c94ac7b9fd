package auth

import (
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const keyInfoPrefix = "offline-sync:"

// KeyRing derives a distinct signing secret per festival from one master
// secret (HKDF-SHA256). Festivals can also be provisioned with an explicit
// secret, which takes precedence over the derived one.
type KeyRing struct {
	master []byte

	mu          sync.RWMutex
	derived     map[string][]byte
	provisioned map[string][]byte
}

func NewKeyRing(master []byte) *KeyRing {
	return &KeyRing{
		master:      master,
		derived:     make(map[string][]byte),
		provisioned: make(map[string][]byte),
	}
}

// Provision pins festivalID to secret. Passing nil removes the pin.
func (k *KeyRing) Provision(festivalID string, secret []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if secret == nil {
		delete(k.provisioned, festivalID)
		return
	}
	k.provisioned[festivalID] = append([]byte(nil), secret...)
}

func (k *KeyRing) Secret(festivalID string) ([]byte, error) {
	if strings.TrimSpace(festivalID) == "" {
		return nil, fmt.Errorf("%w: empty festival id", ErrNoSecret)
	}

	k.mu.RLock()
	if s, ok := k.provisioned[festivalID]; ok {
		k.mu.RUnlock()
		return s, nil
	}
	if s, ok := k.derived[festivalID]; ok {
		k.mu.RUnlock()
		return s, nil
	}
	k.mu.RUnlock()

	if len(k.master) == 0 {
		return nil, ErrNoSecret
	}
	out := make([]byte, 32)
	r := hkdf.New(sha256.New, k.master, nil, []byte(keyInfoPrefix+festivalID))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive secret for festival %q: %w", festivalID, err)
	}

	k.mu.Lock()
	k.derived[festivalID] = out
	k.mu.Unlock()
	return out, nil
}
