// Package verifcache is an in-process, TTL-aware cache for the ephemeral
// state spec.md §3 describes as "in-memory": VerificationCode entries and
// the Session/Status pair. It adapts the teacher's bucket-per-entity BoltDB
// CRUD idiom (pkg/storage/boltdb.go: one bucket per entity, JSON-marshaled
// values, Create/Get/Delete per bucket) to a different entity set, giving
// the cache process-restart durability a plain in-memory map would not
// have, plus a background sweep goroutine that expires verification codes
// past their TTL.
package verifcache

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/littleblus/breezechat/pkg/types"
)

var (
	bucketCodes    = []byte("verification_codes")
	bucketSessions = []byte("sessions")
	bucketStatus   = []byte("status")
)

// Cache wraps a bbolt database dedicated to ephemeral auth state.
type Cache struct {
	db       *bolt.DB
	stopSweep chan struct{}
}

// Open opens (creating if needed) the cache database under dataDir and
// starts the expiry sweep goroutine.
func Open(dataDir string) (*Cache, error) {
	dbPath := filepath.Join(dataDir, "verifcache.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("verifcache: open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketCodes, bucketSessions, bucketStatus} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("verifcache: create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	c := &Cache{db: db, stopSweep: make(chan struct{})}
	go c.sweepLoop()
	return c, nil
}

// Close stops the sweep goroutine and closes the database.
func (c *Cache) Close() error {
	close(c.stopSweep)
	return c.db.Close()
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweepExpiredCodes()
		case <-c.stopSweep:
			return
		}
	}
}

func (c *Cache) sweepExpiredCodes() {
	now := time.Now()
	_ = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCodes)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var vc types.VerificationCode
			if err := json.Unmarshal(v, &vc); err != nil {
				return nil
			}
			if now.After(vc.ExpiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- VerificationCode --------------------------------------------------------

// PutCode stores code under codeID with the given TTL (<=600s per spec.md §3).
func (c *Cache) PutCode(codeID, code string, ttl time.Duration) error {
	vc := types.VerificationCode{CodeID: codeID, Code: code, ExpiresAt: time.Now().Add(ttl)}
	return c.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(vc)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketCodes).Put([]byte(codeID), data)
	})
}

// GetCode loads the code for codeID. It returns ok=false if the id is
// unknown or has expired (treated identically: a missing code id is a
// ValidationError at the caller, per spec.md §9's REQUIRED fix, never a
// crash from dereferencing an absent entry).
func (c *Cache) GetCode(codeID string) (code string, ok bool) {
	_ = c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCodes).Get([]byte(codeID))
		if data == nil {
			return nil
		}
		var vc types.VerificationCode
		if err := json.Unmarshal(data, &vc); err != nil {
			return nil
		}
		if time.Now().After(vc.ExpiresAt) {
			return nil
		}
		code, ok = vc.Code, true
		return nil
	})
	return code, ok
}

// ConsumeCode deletes codeID, used after a successful compare so a code can
// only be used once.
func (c *Cache) ConsumeCode(codeID string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCodes).Delete([]byte(codeID))
	})
}

// --- Session / Status --------------------------------------------------------

// PutSession writes Session[sessionID] = userID and Status[userID] = "1".
// Callers are expected to have already checked that userID has no existing
// Status entry (enforced by the login paths, per spec.md §3).
func (c *Cache) PutSession(sessionID, userID string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketSessions).Put([]byte(sessionID), []byte(userID)); err != nil {
			return err
		}
		return tx.Bucket(bucketStatus).Put([]byte(userID), []byte("1"))
	})
}

// SessionUser returns the user_id for sessionID, or ok=false if absent.
func (c *Cache) SessionUser(sessionID string) (userID string, ok bool) {
	_ = c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get([]byte(sessionID))
		if data != nil {
			userID, ok = string(data), true
		}
		return nil
	})
	return userID, ok
}

// HasStatus reports whether userID currently has a Status entry (is
// "logged in"), used by UserLogin to reject a second concurrent login.
func (c *Cache) HasStatus(userID string) bool {
	var has bool
	_ = c.db.View(func(tx *bolt.Tx) error {
		has = tx.Bucket(bucketStatus).Get([]byte(userID)) != nil
		return nil
	})
	return has
}

// ValidateSession enforces spec.md §9's REQUIRED session-enforcement check:
// the (session_id, user_id) pair a write operation claims must match the
// cached Session/Status pair, or the operation is rejected.
func (c *Cache) ValidateSession(sessionID, userID string) bool {
	owner, ok := c.SessionUser(sessionID)
	return ok && owner == userID
}

// DeleteSession removes a session and its owner's status entry, used on
// logout.
func (c *Cache) DeleteSession(sessionID string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get([]byte(sessionID))
		if data == nil {
			return nil
		}
		userID := append([]byte(nil), data...)
		if err := tx.Bucket(bucketSessions).Delete([]byte(sessionID)); err != nil {
			return err
		}
		return tx.Bucket(bucketStatus).Delete(userID)
	})
}
