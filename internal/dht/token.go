package dht

import (
	"crypto/rand"
	"crypto/sha1"
	"net"
)

// TokenManager issues and validates the opaque announce tokens BEP-5
// requires get_peers/announce_peer to round-trip. Like Storage, it is owned
// solely by the service loop; secret rotation is driven by the loop's timer
// tick instead of a private goroutine.
type TokenManager struct {
	currentSecret  [sha1.Size]byte
	previousSecret [sha1.Size]byte
}

// NewTokenManager returns a manager with freshly randomized secrets.
func NewTokenManager() (*TokenManager, error) {
	tm := &TokenManager{}
	if _, err := rand.Read(tm.currentSecret[:]); err != nil {
		return nil, err
	}
	if _, err := rand.Read(tm.previousSecret[:]); err != nil {
		return nil, err
	}
	return tm, nil
}

// Generate returns the token for ip under the current secret.
func (tm *TokenManager) Generate(ip net.IP) string {
	return tm.generateWithSecret(ip, tm.currentSecret)
}

// Validate reports whether token is valid for ip under the current or
// previous secret (so a token issued just before rotation still works).
func (tm *TokenManager) Validate(ip net.IP, token string) bool {
	return token == tm.generateWithSecret(ip, tm.currentSecret) ||
		token == tm.generateWithSecret(ip, tm.previousSecret)
}

func (tm *TokenManager) generateWithSecret(ip net.IP, secret [sha1.Size]byte) string {
	h := sha1.New()
	h.Write(ip.To4())
	h.Write(secret[:])
	return string(h.Sum(nil))
}

// Rotate ages the current secret out to previous and draws a fresh one.
// Called from the service loop's timer tick.
func (tm *TokenManager) Rotate() error {
	tm.previousSecret = tm.currentSecret
	_, err := rand.Read(tm.currentSecret[:])
	return err
}
