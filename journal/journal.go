// Package journal persists the state roots a leader signed. For a channel
// and a watermark there is exactly one root: recomputing the same tick must
// yield the same root, and a different one is refused instead of signed.
package journal

import (
	"fmt"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/rony4d/go-adex-validator/inter"
)

var signedPrefix = []byte("s")

// Record is one signed state.
type Record struct {
	StateRoot common.Hash
	// SignedAt is the unix-ms time of the first signature.
	SignedAt uint64
}

// ConflictError refuses a second root for an already signed watermark.
type ConflictError struct {
	Channel   inter.ChannelID
	Watermark inter.Timestamp
	Have      common.Hash
	Want      common.Hash
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("channel %s watermark %d already signed with root %s, refusing %s",
		e.Channel.Hex(), e.Watermark.Millis(), e.Have.Hex(), e.Want.Hex())
}

// Journal is safe for concurrent use.
type Journal struct {
	db ethdb.KeyValueStore
	mu sync.Mutex
}

// New wraps db.
func New(db ethdb.KeyValueStore) *Journal {
	return &Journal{db: db}
}

// NewMemory returns a journal that lives as long as the process.
func NewMemory() *Journal {
	return New(memorydb.New())
}

// Open opens or creates the LevelDB journal in dir.
func Open(dir string, cache, handles int) (*Journal, error) {
	db, err := leveldb.New(dir, cache, handles, "validator/journal/", false)
	if err != nil {
		return nil, errors.Wrapf(err, "open journal %s", dir)
	}
	return New(db), nil
}

func key(channel inter.ChannelID, watermark inter.Timestamp) []byte {
	k := make([]byte, 0, len(signedPrefix)+common.HashLength+8)
	k = append(k, signedPrefix...)
	k = append(k, channel.Bytes()...)
	return append(k, bigendian.Uint64ToBytes(watermark.Millis())...)
}

// Record stores root as the signed state of channel at watermark. Storing
// the same root again is a no-op; a different root is a *ConflictError.
func (j *Journal) Record(channel inter.ChannelID, watermark inter.Timestamp, root common.Hash) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	have, err := j.get(channel, watermark)
	if err != nil {
		return err
	}
	if have != nil {
		if have.StateRoot != root {
			return &ConflictError{Channel: channel, Watermark: watermark, Have: have.StateRoot, Want: root}
		}
		return nil
	}

	raw, err := rlp.EncodeToBytes(&Record{StateRoot: root, SignedAt: inter.Now().Millis()})
	if err != nil {
		return err
	}
	return errors.Wrap(j.db.Put(key(channel, watermark), raw), "journal put")
}

// get returns the record of channel at watermark, or nil.
func (j *Journal) get(channel inter.ChannelID, watermark inter.Timestamp) (*Record, error) {
	k := key(channel, watermark)
	ok, err := j.db.Has(k)
	if err != nil || !ok {
		return nil, errors.Wrap(err, "journal has")
	}
	raw, err := j.db.Get(k)
	if err != nil {
		return nil, errors.Wrap(err, "journal get")
	}
	var r Record
	if err := rlp.DecodeBytes(raw, &r); err != nil {
		return nil, errors.Wrap(err, "journal decode")
	}
	return &r, nil
}

// Latest returns the record with the highest watermark of channel, or nil.
// Big-endian keys iterate in watermark order.
func (j *Journal) Latest(channel inter.ChannelID) (*Record, inter.Timestamp, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	prefix := append(append([]byte{}, signedPrefix...), channel.Bytes()...)
	it := j.db.NewIterator(prefix, nil)
	defer it.Release()

	var (
		last      []byte
		watermark inter.Timestamp
	)
	for it.Next() {
		last = common.CopyBytes(it.Value())
		watermark = inter.Timestamp(bigendian.BytesToUint64(it.Key()[len(prefix):]))
	}
	if err := it.Error(); err != nil {
		return nil, 0, errors.Wrap(err, "journal iterate")
	}
	if last == nil {
		return nil, 0, nil
	}
	var r Record
	if err := rlp.DecodeBytes(last, &r); err != nil {
		return nil, 0, errors.Wrap(err, "journal decode")
	}
	return &r, watermark, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
