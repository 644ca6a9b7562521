// Package persist implements the append-only header/block/account files
// plus the on-disk UTXO index.
// Grounded on original_source/src/blockchain/file.rs and
// file_manager.rs: each store serializes access to its own file with a
// mutex and exposes the same ReadAllBlocks/WriteHeadersFile/
// WriteBlockFile/ReadLastHeader operations the Rust FileManager does.
package persist

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"go-testnet-node/internal/chain"
	"go-testnet-node/internal/nodeerr"
)

// HeaderStore is the append-only 80-byte-record headers file.
type HeaderStore struct {
	mu   sync.Mutex
	path string
}

func OpenHeaderStore(path string) (*HeaderStore, error) {
	if err := truncateToRecordBoundary(path, chain.HeaderSize); err != nil {
		return nil, fmt.Errorf("%w: headers file - %v", nodeerr.ErrPersistence, err)
	}
	return &HeaderStore{path: path}, nil
}

// Count returns filesize/80, the current header chain height.
func (s *HeaderStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: stat headers file - %v", nodeerr.ErrPersistence, err)
	}
	return int(info.Size() / chain.HeaderSize), nil
}

// AppendBatch appends every header in order as one write, so a batch is
// either wholly visible or not at all on the next restart.
func (s *HeaderStore) AppendBatch(headers []chain.BlockHeader) error {
	if len(headers) == 0 {
		return nil
	}
	buf := make([]byte, 0, len(headers)*chain.HeaderSize)
	for _, h := range headers {
		buf = append(buf, h.Serialize()...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open headers file - %v", nodeerr.ErrPersistence, err)
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("%w: write headers - %v", nodeerr.ErrPersistence, err)
	}
	return f.Sync()
}

// ReadLast returns the last header on disk, or ok=false if the file is
// empty.
func (s *HeaderStore) ReadLast() (h chain.BlockHeader, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return chain.BlockHeader{}, false, nil
	}
	if err != nil {
		return chain.BlockHeader{}, false, fmt.Errorf("%w: open headers file - %v", nodeerr.ErrPersistence, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return chain.BlockHeader{}, false, fmt.Errorf("%w: stat headers file - %v", nodeerr.ErrPersistence, err)
	}
	if info.Size() == 0 {
		return chain.BlockHeader{}, false, nil
	}

	if _, err := f.Seek(info.Size()-chain.HeaderSize, io.SeekStart); err != nil {
		return chain.BlockHeader{}, false, fmt.Errorf("%w: seek headers file - %v", nodeerr.ErrPersistence, err)
	}
	h, err = chain.ParseHeader(f)
	if err != nil {
		return chain.BlockHeader{}, false, fmt.Errorf("%w: read last header - %v", nodeerr.ErrPersistence, err)
	}
	return h, true, nil
}

// ReadAll returns every header on disk, in chain order.
func (s *HeaderStore) ReadAll() ([]chain.BlockHeader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open headers file - %v", nodeerr.ErrPersistence, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var out []chain.BlockHeader
	for {
		h, err := chain.ParseHeader(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read headers - %v", nodeerr.ErrPersistence, err)
		}
		out = append(out, h)
	}
	return out, nil
}

// truncateToRecordBoundary trims a trailing partial record left by a
// crash mid-write, so an interrupted append never becomes a silently
// corrupt record on restart.
func truncateToRecordBoundary(path string, recordSize int64) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	remainder := info.Size() % recordSize
	if remainder == 0 {
		return nil
	}
	return os.Truncate(path, info.Size()-remainder)
}

// BlockStore is the append-only blocks file: records are
// len:u32 LE || block_bytes.
type BlockStore struct {
	mu   sync.Mutex
	path string
}

func OpenBlockStore(path string) (*BlockStore, error) {
	if err := truncateBlocksToRecordBoundary(path); err != nil {
		return nil, fmt.Errorf("%w: blocks file - %v", nodeerr.ErrPersistence, err)
	}
	return &BlockStore{path: path}, nil
}

// truncateBlocksToRecordBoundary walks the variable-length len||body
// records from the start of the file and truncates to the end of the
// last one that parses in full, discarding any dangling partial record
// left by a crash mid-AppendBatch. Without this, a later AppendBatch
// would append valid records after the garbage and ReadAll would stop
// at the first truncated read, silently losing everything after it.
func truncateBlocksToRecordBoundary(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var offset int64
	for {
		var lenPrefix [4]byte
		if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
			break
		}
		recLen := binary.LittleEndian.Uint32(lenPrefix[:])
		body := make([]byte, recLen)
		if _, err := io.ReadFull(r, body); err != nil {
			break
		}
		offset += int64(len(lenPrefix)) + int64(recLen)
	}
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if offset == info.Size() {
		return nil
	}
	return f.Truncate(offset)
}

// AppendBatch writes every block as one contiguous set of records, in
// the order given (the IBD engine sorts by chain position first).
func (s *BlockStore) AppendBatch(blocks []chain.SerializedBlock) error {
	if len(blocks) == 0 {
		return nil
	}
	var buf []byte
	for i, b := range blocks {
		ser, err := b.Serialize()
		if err != nil {
			return fmt.Errorf("%w: serialize block %d - %v", nodeerr.ErrPersistence, i, err)
		}
		var lenPrefix [4]byte
		binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(ser)))
		buf = append(buf, lenPrefix[:]...)
		buf = append(buf, ser...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open blocks file - %v", nodeerr.ErrPersistence, err)
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("%w: write blocks - %v", nodeerr.ErrPersistence, err)
	}
	return f.Sync()
}

// ReadAll streams every block record from disk, in append order. A
// truncated trailing record (a crash mid-write) is treated as end of
// file, not an error.
func (s *BlockStore) ReadAll() ([]chain.SerializedBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open blocks file - %v", nodeerr.ErrPersistence, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var out []chain.SerializedBlock
	for {
		var lenPrefix [4]byte
		if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
			break
		}
		recLen := binary.LittleEndian.Uint32(lenPrefix[:])
		body := make([]byte, recLen)
		if _, err := io.ReadFull(r, body); err != nil {
			break
		}
		blk, err := chain.ParseBlock(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: parse block record - %v", nodeerr.ErrPersistence, err)
		}
		out = append(out, blk)
	}
	return out, nil
}
