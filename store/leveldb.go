package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/dlc-foundation/go-dlc/inter"
)

// Key prefixes. One byte each; the remainder of the key is the record ID.
var (
	prefixBlock       = []byte("b")
	prefixCertificate = []byte("c")
	prefixTelemetry   = []byte("t")
	keyLatestRound    = []byte("R")
)

var _ Store = (*LevelDB)(nil)

// LevelDB implements Store on a goleveldb database. Values are RLP.
type LevelDB struct {
	conn *leveldb.DB

	// latestMu serializes the read-modify-write of the latest round marker.
	latestMu sync.Mutex

	log *logrus.Entry
}

// OpenLevelDB opens (or creates) the database at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	conn, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return newLevelDB(conn), nil
}

// NewMemStore returns a Store backed by in-memory storage, for tests and
// fakenet nodes.
func NewMemStore() *LevelDB {
	conn, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		panic("store: in-memory open failed: " + err.Error())
	}
	return newLevelDB(conn)
}

func newLevelDB(conn *leveldb.DB) *LevelDB {
	return &LevelDB{
		conn: conn,
		log:  logrus.WithField("module", "store"),
	}
}

// Close flushes and closes the database.
func (s *LevelDB) Close() error {
	return s.conn.Close()
}

func (s *LevelDB) put(key []byte, record interface{}) error {
	buf, err := rlp.EncodeToBytes(record)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", key[:1], err)
	}
	return s.conn.Put(key, buf, nil)
}

func (s *LevelDB) get(key []byte, record interface{}) error {
	buf, err := s.conn.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return rlp.DecodeBytes(buf, record)
}

func blockKey(id hash.Hash) []byte {
	return append(prefixBlock, id.Bytes()...)
}

func certKey(round inter.Round) []byte {
	key := make([]byte, 1, 9)
	copy(key, prefixCertificate)
	return binary.BigEndian.AppendUint64(key, uint64(round))
}

func telemetryKey(v inter.ValidatorID) []byte {
	return append(prefixTelemetry, v.Bytes()...)
}

// PutBlock persists a block under its content ID.
func (s *LevelDB) PutBlock(b *inter.Block) error {
	return s.put(blockKey(b.ID()), b)
}

// GetBlock loads a block by ID.
func (s *LevelDB) GetBlock(id hash.Hash) (*inter.Block, error) {
	b := new(inter.Block)
	if err := s.get(blockKey(id), b); err != nil {
		return nil, err
	}
	return b, nil
}

// PutRoundCertificate persists a certificate and advances the latest round
// marker if this round is newer. Certificates may arrive out of order during
// catch-up; the marker only moves forward.
func (s *LevelDB) PutRoundCertificate(c *inter.RoundCertificate) error {
	if err := s.put(certKey(c.Round), c); err != nil {
		return err
	}

	s.latestMu.Lock()
	defer s.latestMu.Unlock()
	latest, err := s.LatestRound()
	if err != nil {
		return err
	}
	if c.Round <= latest {
		return nil
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(c.Round))
	if err := s.conn.Put(keyLatestRound, buf[:], nil); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"round": uint64(c.Round),
		"cert":  c.Hash().Hex(),
	}).Debug("round finalized on disk")
	return nil
}

// GetRoundCertificate loads a round's certificate.
func (s *LevelDB) GetRoundCertificate(round inter.Round) (*inter.RoundCertificate, error) {
	c := new(inter.RoundCertificate)
	if err := s.get(certKey(round), c); err != nil {
		return nil, err
	}
	return c, nil
}

// LatestRound returns the highest finalized round, zero when the store has
// no certificate yet.
func (s *LevelDB) LatestRound() (inter.Round, error) {
	buf, err := s.conn.Get(keyLatestRound, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(buf) != 8 {
		return 0, fmt.Errorf("store: corrupt latest round marker, %d bytes", len(buf))
	}
	return inter.Round(binary.BigEndian.Uint64(buf)), nil
}

// PutTelemetry persists a validator's telemetry record.
func (s *LevelDB) PutTelemetry(t *inter.ValidatorTelemetry) error {
	return s.put(telemetryKey(t.Validator), t)
}

// GetTelemetry loads a validator's telemetry record.
func (s *LevelDB) GetTelemetry(v inter.ValidatorID) (*inter.ValidatorTelemetry, error) {
	t := new(inter.ValidatorTelemetry)
	if err := s.get(telemetryKey(v), t); err != nil {
		return nil, err
	}
	return t, nil
}
