package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FlashMessage is a notice shown once on the next rendered page.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionManager keeps staff sessions in Redis behind an opaque cookie.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
}

// Session is the per-request view of a stored session.
type Session struct {
	ID string

	values  map[string]string
	staffID int64
	flashes []FlashMessage

	// replaces holds the id retired by SignIn until the next Commit.
	replaces  string
	isNew     bool
	dirty     bool
	destroyed bool
}

type sessionPayload struct {
	Values  map[string]string `json:"values"`
	StaffID int64             `json:"staff_id,omitempty"`
	Flashes []FlashMessage    `json:"flashes"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
	}
}

// Load returns the session named by the request cookie, or a fresh one.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return newSession(), nil
		}
		return nil, err
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return newSession(), nil
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return newSession(), nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}
	return &Session{
		ID:      cookie.Value,
		values:  stored.Values,
		staffID: stored.StaffID,
		flashes: stored.Flashes,
	}, nil
}

// Commit persists the session and writes the cookie.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		http.SetCookie(w, sm.cookie("", -1))
		return nil
	}

	if sess.replaces != "" {
		if err := sm.client.Del(ctx, sm.redisKey(sess.replaces)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		sess.replaces = ""
	}

	if sess.dirty || sess.isNew {
		if err := sm.store(ctx, sess); err != nil {
			return err
		}
		sess.dirty = false
		sess.isNew = false
	}
	http.SetCookie(w, sm.cookie(sess.ID, 0))

	// Flashes live for exactly one commit.
	if len(sess.flashes) > 0 {
		sess.flashes = nil
		return sm.store(ctx, sess)
	}
	return nil
}

// Destroy marks the session for deletion on the next Commit.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// TTL is how long an idle session survives in Redis.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName is the name of the session cookie.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

func (sm *SessionManager) store(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sessionPayload{Values: sess.values, StaffID: sess.staffID, Flashes: sess.flashes})
	if err != nil {
		return err
	}
	return sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl).Err()
}

func (sm *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     sm.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
	}
	if maxAge == 0 {
		c.Expires = time.Now().Add(sm.ttl)
	}
	return c
}

func (sm *SessionManager) redisKey(id string) string {
	return "studentdesk:session:" + id
}

// SignIn binds the session to a staff member under a new id, so a session id
// seen before authentication never carries an identity. Stored values such as
// the CSRF token are dropped.
func (s *Session) SignIn(staffID int64) {
	if !s.isNew && s.replaces == "" {
		s.replaces = s.ID
	}
	s.ID = uuid.NewString()
	s.staffID = staffID
	s.values = make(map[string]string)
	s.dirty = true
}

// StaffID returns the signed-in staff member, if any.
func (s *Session) StaffID() (int64, bool) {
	if s == nil || s.staffID <= 0 {
		return 0, false
	}
	return s.staffID, true
}

// Set records a string value under key.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = map[string]string{}
	}
	if old, ok := s.values[key]; ok && old == value {
		return
	}
	s.values[key] = value
	s.dirty = true
}

// Get returns the value under key, or "" when unset.
func (s *Session) Get(key string) string {
	return s.values[key]
}

// Delete drops key.
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// AddFlash queues msg for the next rendered page.
func (s *Session) AddFlash(msg FlashMessage) {
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// PopFlash removes and returns the oldest queued flash.
func (s *Session) PopFlash() *FlashMessage {
	if len(s.flashes) == 0 {
		return nil
	}
	head := s.flashes[0]
	s.flashes = s.flashes[1:]
	s.dirty = true
	return &head
}

func newSession() *Session {
	return &Session{
		ID:     uuid.NewString(),
		values: make(map[string]string),
		isNew:  true,
		dirty:  true,
	}
}
