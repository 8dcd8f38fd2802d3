package application

import (
	"github.com/ArkLabsHQ/bitswap/pkg/htlc"
	"github.com/puzpuzpuz/xsync/v3"
)

// keyedLocks serializes compile and execute calls per commitment hash. A
// second caller for a held hash fails instead of waiting.
type keyedLocks struct {
	held *xsync.MapOf[htlc.Hash, string]
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{held: xsync.NewMapOf[htlc.Hash, string]()}
}

func (k *keyedLocks) tryLock(hash htlc.Hash, op string) (func(), error) {
	if holder, loaded := k.held.LoadOrStore(hash, op); loaded {
		return nil, htlc.Errorf(htlc.ErrBusy, "%s already in progress for %s", holder, hash)
	}
	return func() { k.held.Delete(hash) }, nil
}
