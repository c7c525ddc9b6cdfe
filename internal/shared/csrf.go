package shared

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

const (
	// CSRFSessionKey is the session value holding the issued token.
	CSRFSessionKey = "csrf_token"
	// CSRFFormField is the form field name carrying the CSRF token.
	CSRFFormField = "csrf_token"
	// CSRFHeader carries the token for JSON requests.
	CSRFHeader = "X-CSRF-Token"
)

// CSRFManager issues tokens of the form nonce.mac, where mac signs the
// session id and nonce. A token copied into another session never verifies.
type CSRFManager struct {
	secret []byte
}

// NewCSRFManager returns a CSRFManager using the provided secret key.
func NewCSRFManager(secret string) *CSRFManager {
	return &CSRFManager{secret: []byte(secret)}
}

// EnsureToken returns the session's token, issuing one when absent.
func (m *CSRFManager) EnsureToken(_ context.Context, sess *Session) (string, error) {
	if sess == nil {
		return "", ErrCSRFTokenMissing
	}
	if token := sess.Get(CSRFSessionKey); token != "" && m.signedFor(sess.ID, token) {
		return token, nil
	}
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	token := nonce + "." + m.sign(sess.ID, nonce)
	sess.Set(CSRFSessionKey, token)
	return token, nil
}

// VerifyToken checks token against the one issued to sess.
func (m *CSRFManager) VerifyToken(_ context.Context, sess *Session, token string) error {
	if sess == nil || token == "" {
		return ErrCSRFTokenMissing
	}
	issued := sess.Get(CSRFSessionKey)
	if issued == "" {
		return ErrCSRFTokenMissing
	}
	if !hmac.Equal([]byte(issued), []byte(token)) || !m.signedFor(sess.ID, token) {
		return ErrCSRFTokenMismatch
	}
	return nil
}

// Clear drops the issued token; the next EnsureToken issues a fresh one.
func (m *CSRFManager) Clear(sess *Session) {
	if sess != nil {
		sess.Delete(CSRFSessionKey)
	}
}

func (m *CSRFManager) signedFor(sessionID, token string) bool {
	nonce, mac, ok := strings.Cut(token, ".")
	if !ok || nonce == "" {
		return false
	}
	return hmac.Equal([]byte(mac), []byte(m.sign(sessionID, nonce)))
}

func (m *CSRFManager) sign(sessionID, nonce string) string {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
