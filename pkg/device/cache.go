package device

import (
	"crypto/md5" //nolint:gosec // filename derivation only, not a security boundary
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bridgeerrors "github.com/tkaufmann/fossibot-mqtt-bridge-sub002/pkg/errors"
)

// record is the on-disk shape for one account's device list.
type record struct {
	Devices   []Device  `json:"devices"`
	CachedAt  time.Time `json:"cached_at"`
}

// Cache persists the device list per account and tracks in-memory
// liveness per MAC. Default TTL is 86400s.
type Cache struct {
	Dir string
	TTL time.Duration

	mu       sync.RWMutex
	liveness map[string]*Liveness // keyed by canonical MAC
}

// New creates a device Cache rooted at dir.
func New(dir string, ttl time.Duration) *Cache {
	if ttl == 0 {
		ttl = 86400 * time.Second
	}
	return &Cache{Dir: dir, TTL: ttl, liveness: make(map[string]*Liveness)}
}

func (c *Cache) pathFor(account string) string {
	sum := md5.Sum([]byte(account)) //nolint:gosec
	return filepath.Join(c.Dir, fmt.Sprintf("devices_%s.json", hex.EncodeToString(sum[:])))
}

// Get returns the cached device list for account. A miss (ok=false) is
// reported on an absent, corrupt, or expired cache file — never a hard
// error, matching pkg/tokencache's corruption-as-miss rule.
func (c *Cache) Get(account string) (devices []Device, ok bool) {
	data, err := os.ReadFile(c.pathFor(account))
	if err != nil {
		return nil, false
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}

	if time.Since(rec.CachedAt) >= c.TTL {
		return nil, false
	}

	return rec.Devices, true
}

// Put stores the device list for account, overwriting any prior entry.
func (c *Cache) Put(account string, devices []Device) error {
	if err := os.MkdirAll(c.Dir, 0700); err != nil {
		return bridgeerrors.New(bridgeerrors.PersistenceError, "device.Put", account, "", err)
	}

	rec := record{Devices: devices, CachedAt: time.Now()}
	data, err := json.Marshal(rec)
	if err != nil {
		return bridgeerrors.New(bridgeerrors.PersistenceError, "device.Put", account, "", err)
	}

	path := c.pathFor(account)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".devices-*.tmp")
	if err != nil {
		return bridgeerrors.New(bridgeerrors.PersistenceError, "device.Put", account, "", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return bridgeerrors.New(bridgeerrors.PersistenceError, "device.Put", account, "", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return bridgeerrors.New(bridgeerrors.PersistenceError, "device.Put", account, "", err)
	}
	if err := tmp.Close(); err != nil {
		return bridgeerrors.New(bridgeerrors.PersistenceError, "device.Put", account, "", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return bridgeerrors.New(bridgeerrors.PersistenceError, "device.Put", account, "", err)
	}
	return nil
}

// Invalidate drops the cached device list for account.
func (c *Cache) Invalidate(account string) error {
	path := c.pathFor(account)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(path)
}

// RecordSeen updates the in-memory liveness record for mac: resets the
// consecutive-decode-error count and stamps LastSeen.
func (c *Cache) RecordSeen(mac string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.liveness[mac]
	if !ok {
		l = &Liveness{}
		c.liveness[mac] = l
	}
	l.LastSeen = time.Now()
	l.ConsecutiveDecodeErrors = 0
}

// RecordDecodeError increments the consecutive-decode-error count for mac
// without touching LastSeen.
func (c *Cache) RecordDecodeError(mac string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.liveness[mac]
	if !ok {
		l = &Liveness{}
		c.liveness[mac] = l
	}
	l.ConsecutiveDecodeErrors++
	return l.ConsecutiveDecodeErrors
}

// LivenessFor returns a copy of the in-memory record for mac, or the zero
// value if none exists yet.
func (c *Cache) LivenessFor(mac string) Liveness {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if l, ok := c.liveness[mac]; ok {
		return *l
	}
	return Liveness{}
}
