package tokencache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetMissOnAbsentFile(t *testing.T) {
	c := New(t.TempDir(), 0, 0)
	if _, ok := c.Get("a@example.com", StageLogin); ok {
		t.Fatal("expected miss on absent cache file")
	}
}

func TestPutThenGetRoundTrip(t *testing.T) {
	c := New(t.TempDir(), 5*time.Second, time.Hour)
	account := "a@example.com"

	if err := c.Put(account, StageMQTT, "tok-123", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	got, ok := c.Get(account, StageMQTT)
	if !ok {
		t.Fatal("expected hit after put")
	}
	if got.Value != "tok-123" {
		t.Fatalf("got value %q, want tok-123", got.Value)
	}
}

func TestGetMissWhenWithinSafetyMargin(t *testing.T) {
	c := New(t.TempDir(), 300*time.Second, time.Hour)
	account := "a@example.com"

	// Expires in 100s; safety margin is 300s, so this must read as a miss.
	if err := c.Put(account, StageLogin, "short-lived", time.Now().Add(100*time.Second)); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Get(account, StageLogin); ok {
		t.Fatal("expected miss: remaining TTL is below the safety margin")
	}
}

func TestGetHitWhenBeyondSafetyMargin(t *testing.T) {
	c := New(t.TempDir(), 300*time.Second, time.Hour)
	account := "a@example.com"

	if err := c.Put(account, StageLogin, "long-lived", time.Now().Add(301*time.Second)); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Get(account, StageLogin); !ok {
		t.Fatal("expected hit: remaining TTL is just above the safety margin")
	}
}

func TestPutCapsExpiryAtMaxTokenTTL(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 0, time.Hour)
	account := "a@example.com"

	serverClaimedExpiry := time.Now().Add(365 * 24 * time.Hour)
	if err := c.Put(account, StageLogin, "long-claim", serverClaimedExpiry); err != nil {
		t.Fatal(err)
	}

	got, ok := c.Get(account, StageLogin)
	if !ok {
		t.Fatal("expected hit")
	}
	if got.ExpiresAt.After(time.Now().Add(time.Hour + time.Minute)) {
		t.Fatalf("expiry %v not capped to max_token_ttl", got.ExpiresAt)
	}
}

func TestCorruptFileTreatedAsMiss(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 0, time.Hour)
	account := "a@example.com"

	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(c.pathFor(account), []byte("{not valid json"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Get(account, StageLogin); ok {
		t.Fatal("expected miss: cache file is corrupt")
	}
}

func TestPutIsAtomicNoPartialFileObservedInBetween(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 0, time.Hour)
	account := "a@example.com"

	if err := c.Put(account, StageAnonymous, "v1", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	// No .tmp artifact should survive a successful write.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("leftover temp file after successful put: %s", e.Name())
		}
	}

	// The file that does exist must be valid, complete JSON at all times
	// a reader could observe it — simulate a concurrent reader immediately
	// after Put returns.
	data, err := os.ReadFile(c.pathFor(account))
	if err != nil {
		t.Fatal(err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("cache file not valid JSON after put: %v", err)
	}
}

func TestInvalidateSingleStageLeavesOthersIntact(t *testing.T) {
	c := New(t.TempDir(), 0, time.Hour)
	account := "a@example.com"

	if err := c.Put(account, StageAnonymous, "anon", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(account, StageLogin, "login", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	if err := c.Invalidate(account, StageLogin); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Get(account, StageLogin); ok {
		t.Fatal("expected login stage to be invalidated")
	}
	if _, ok := c.Get(account, StageAnonymous); !ok {
		t.Fatal("expected anonymous stage to survive invalidation of a different stage")
	}
}

func TestInvalidateAllStagesRemovesFile(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 0, time.Hour)
	account := "a@example.com"

	if err := c.Put(account, StageMQTT, "tok", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := c.Invalidate(account); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(c.pathFor(account)); !os.IsNotExist(err) {
		t.Fatalf("expected cache file removed, stat err = %v", err)
	}
}

func TestInvalidateOnAbsentFileIsNoop(t *testing.T) {
	c := New(t.TempDir(), 0, time.Hour)
	if err := c.Invalidate("nobody@example.com"); err != nil {
		t.Fatalf("invalidate on absent file should not error: %v", err)
	}
}
