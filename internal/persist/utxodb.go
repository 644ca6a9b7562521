package persist

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"go-testnet-node/internal/nodeerr"
)

// UTXORecord is the on-disk form of an unspent output: a
// (txid, vout, value, script, owner) tuple.
type UTXORecord struct {
	TxID   [32]byte
	Vout   uint32
	Value  int64
	Script []byte
	Owner  string // empty if unowned by any known account
}

// UTXOStore is the leveldb-backed unspent-output index the UTXO actor
// owns exclusively. Primary keys are "u:"+txid+vout; a secondary
// "o:"+owner+":"+txid+vout index (empty value) supports
// GetAvailable's per-address scan without loading the whole set.
type UTXOStore struct {
	db *leveldb.DB
}

func OpenUTXOStore(dir string) (*UTXOStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open utxo db - %v", nodeerr.ErrPersistence, err)
	}
	return &UTXOStore{db: db}, nil
}

func (s *UTXOStore) Close() error {
	return s.db.Close()
}

func primaryKey(txid [32]byte, vout uint32) []byte {
	key := make([]byte, 0, 2+32+4)
	key = append(key, 'u', ':')
	key = append(key, txid[:]...)
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], vout)
	return append(key, v[:]...)
}

func ownerKey(owner string, txid [32]byte, vout uint32) []byte {
	key := []byte("o:" + owner + ":")
	key = append(key, txid[:]...)
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], vout)
	return append(key, v[:]...)
}

func encodeUTXO(r UTXORecord) []byte {
	buf := make([]byte, 0, 8+2+len(r.Script)+2+len(r.Owner))
	var value [8]byte
	binary.LittleEndian.PutUint64(value[:], uint64(r.Value))
	buf = append(buf, value[:]...)

	var scriptLen [2]byte
	binary.LittleEndian.PutUint16(scriptLen[:], uint16(len(r.Script)))
	buf = append(buf, scriptLen[:]...)
	buf = append(buf, r.Script...)

	var ownerLen [2]byte
	binary.LittleEndian.PutUint16(ownerLen[:], uint16(len(r.Owner)))
	buf = append(buf, ownerLen[:]...)
	buf = append(buf, r.Owner...)
	return buf
}

func decodeUTXO(txid [32]byte, vout uint32, raw []byte) (UTXORecord, error) {
	if len(raw) < 10 {
		return UTXORecord{}, errors.New("persist: truncated utxo record")
	}
	value := int64(binary.LittleEndian.Uint64(raw[0:8]))
	scriptLen := binary.LittleEndian.Uint16(raw[8:10])
	offset := 10 + int(scriptLen)
	if len(raw) < offset+2 {
		return UTXORecord{}, errors.New("persist: truncated utxo record script")
	}
	script := raw[10:offset]
	ownerLen := binary.LittleEndian.Uint16(raw[offset : offset+2])
	owner := string(raw[offset+2 : offset+2+int(ownerLen)])
	return UTXORecord{TxID: txid, Vout: vout, Value: value, Script: script, Owner: owner}, nil
}

// Put inserts or overwrites a UTXO, maintaining the owner secondary
// index.
func (s *UTXOStore) Put(r UTXORecord) error {
	batch := new(leveldb.Batch)
	batch.Put(primaryKey(r.TxID, r.Vout), encodeUTXO(r))
	if r.Owner != "" {
		batch.Put(ownerKey(r.Owner, r.TxID, r.Vout), nil)
	}
	return s.db.Write(batch, nil)
}

// Delete removes a UTXO. The record is read with Get first to find its
// owner, so the owner index entry is removed too; deleting an outpoint
// that is not indexed is a no-op.
func (s *UTXOStore) Delete(txid [32]byte, vout uint32) error {
	existing, ok, err := s.Get(txid, vout)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	batch := new(leveldb.Batch)
	batch.Delete(primaryKey(txid, vout))
	if existing.Owner != "" {
		batch.Delete(ownerKey(existing.Owner, txid, vout))
	}
	return s.db.Write(batch, nil)
}

func (s *UTXOStore) Get(txid [32]byte, vout uint32) (UTXORecord, bool, error) {
	raw, err := s.db.Get(primaryKey(txid, vout), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return UTXORecord{}, false, nil
	}
	if err != nil {
		return UTXORecord{}, false, fmt.Errorf("%w: get utxo - %v", nodeerr.ErrPersistence, err)
	}
	rec, err := decodeUTXO(txid, vout, raw)
	return rec, true, err
}

// ByOwner scans the secondary index for every UTXO belonging to owner.
func (s *UTXOStore) ByOwner(owner string) ([]UTXORecord, error) {
	prefix := []byte("o:" + owner + ":")
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var out []UTXORecord
	for iter.Next() {
		key := iter.Key()
		suffix := key[len(prefix):]
		if len(suffix) != 36 {
			continue
		}
		var txid [32]byte
		copy(txid[:], suffix[:32])
		vout := binary.BigEndian.Uint32(suffix[32:36])

		rec, ok, err := s.Get(txid, vout)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("%w: scan utxos by owner - %v", nodeerr.ErrPersistence, err)
	}
	return out, nil
}
