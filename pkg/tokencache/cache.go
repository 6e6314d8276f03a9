// Package tokencache persists the three staged cloud-auth tokens per
// account: anonymous, login, mqtt. Reads and writes are file-backed,
// atomic (temp file + rename), and tolerant of corruption — a corrupt
// or unreadable file is treated as a miss, never a fatal error.
package tokencache

import (
	"crypto/md5" //nolint:gosec // not a security boundary: used only to derive a stable per-account filename
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bridgeerrors "github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/errors"
)

// Stage identifies one of the three token kinds the auth flow produces.
type Stage string

const (
	StageAnonymous Stage = "anonymous"
	StageLogin     Stage = "login"
	StageMQTT      Stage = "mqtt"
)

// Token is one cached, staged credential.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CachedAt  time.Time `json:"cached_at"`
}

// record is the on-disk shape: one file per account, keyed by stage.
type record struct {
	Stages map[Stage]Token `json:"stages"`
}

// Cache persists tokens for every account under Dir.
type Cache struct {
	Dir          string
	SafetyMargin time.Duration // default 300s
	MaxTokenTTL  time.Duration // default 86400s; caps any cached expiry
}

// New creates a Cache rooted at dir, applying defaults for zero-valued
// fields.
func New(dir string, safetyMargin, maxTokenTTL time.Duration) *Cache {
	if safetyMargin == 0 {
		safetyMargin = 300 * time.Second
	}
	if maxTokenTTL == 0 {
		maxTokenTTL = 86400 * time.Second
	}
	return &Cache{Dir: dir, SafetyMargin: safetyMargin, MaxTokenTTL: maxTokenTTL}
}

func (c *Cache) pathFor(account string) string {
	sum := md5.Sum([]byte(account)) //nolint:gosec
	return filepath.Join(c.Dir, fmt.Sprintf("tokens_%s.json", hex.EncodeToString(sum[:])))
}

// Get returns the cached token for (account, stage). It reports a miss
// (ok=false) when the file is absent, unreadable, corrupt, or
// the token's remaining TTL is at or below the safety margin — never a
// hard error; callers treat any miss as "re-authenticate this stage".
func (c *Cache) Get(account string, stage Stage) (tok Token, ok bool) {
	data, err := os.ReadFile(c.pathFor(account))
	if err != nil {
		return Token{}, false
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Token{}, false
	}

	t, present := rec.Stages[stage]
	if !present {
		return Token{}, false
	}

	if time.Until(t.ExpiresAt) <= c.SafetyMargin {
		return Token{}, false
	}

	return t, true
}

// Put stores tok for (account, stage), capping its expiry at CachedAt +
// MaxTokenTTL — the vendor's multi-year login-token claim is not
// honored server-side, so a hard ceiling keeps the bridge from trusting
// a token long after it's actually been revoked. The write is atomic: a
// temp file is written in the same directory and renamed over the
// target, so concurrent readers never observe a torn file.
func (c *Cache) Put(account string, stage Stage, value string, serverExpiry time.Time) error {
	now := time.Now()
	ceiling := now.Add(c.MaxTokenTTL)
	expiry := serverExpiry
	if expiry.After(ceiling) {
		expiry = ceiling
	}

	tok := Token{Value: value, ExpiresAt: expiry, CachedAt: now}

	if err := os.MkdirAll(c.Dir, 0700); err != nil {
		return bridgeerrors.New(bridgeerrors.PersistenceError, "tokencache.Put", account, "", err)
	}

	path := c.pathFor(account)
	rec := record{Stages: map[Stage]Token{}}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &rec)
	}
	if rec.Stages == nil {
		rec.Stages = map[Stage]Token{}
	}
	rec.Stages[stage] = tok

	return c.writeAtomic(path, rec, account)
}

// Invalidate drops the given stages for account, or every stage when none
// are given.
func (c *Cache) Invalidate(account string, stages ...Stage) error {
	path := c.pathFor(account)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil // already absent; nothing to invalidate
	}

	if len(stages) == 0 {
		return os.Remove(path)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return os.Remove(path)
	}
	for _, s := range stages {
		delete(rec.Stages, s)
	}
	return c.writeAtomic(path, rec, account)
}

func (c *Cache) writeAtomic(path string, rec record, account string) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return bridgeerrors.New(bridgeerrors.PersistenceError, "tokencache.writeAtomic", account, "", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tokens-*.tmp")
	if err != nil {
		return bridgeerrors.New(bridgeerrors.PersistenceError, "tokencache.writeAtomic", account, "", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return bridgeerrors.New(bridgeerrors.PersistenceError, "tokencache.writeAtomic", account, "", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return bridgeerrors.New(bridgeerrors.PersistenceError, "tokencache.writeAtomic", account, "", err)
	}
	if err := tmp.Close(); err != nil {
		return bridgeerrors.New(bridgeerrors.PersistenceError, "tokencache.writeAtomic", account, "", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return bridgeerrors.New(bridgeerrors.PersistenceError, "tokencache.writeAtomic", account, "", err)
	}
	return nil
}
