package badgerdb

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

// createDB opens a badgerhold store in dbDir, or in memory when dbDir is
// empty. A non empty encryptionKey (16, 24 or 32 bytes) encrypts data at
// rest.
func createDB(dbDir string, logger badger.Logger, encryptionKey []byte) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	if len(encryptionKey) > 0 {
		switch len(encryptionKey) {
		case 16, 24, 32:
		default:
			return nil, fmt.Errorf("invalid encryption key length %d", len(encryptionKey))
		}
		opts.EncryptionKey = encryptionKey
		opts.IndexCacheSize = 10 << 20
	}

	return badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}

type logger struct {
	entry *log.Entry
}

// NewLogger returns a badger logger backed by logrus. Badger's info logs are
// demoted to debug.
func NewLogger() badger.Logger {
	return &logger{entry: log.WithField("module", "badger")}
}

func (l *logger) Errorf(format string, args ...any)   { l.entry.Errorf(format, args...) }
func (l *logger) Warningf(format string, args ...any) { l.entry.Warnf(format, args...) }
func (l *logger) Infof(format string, args ...any)    { l.entry.Debugf(format, args...) }
func (l *logger) Debugf(format string, args ...any)   { l.entry.Tracef(format, args...) }
