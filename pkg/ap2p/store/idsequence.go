package store

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoAvailableID is returned once the 32-bit id space is exhausted.
var ErrNoAvailableID = errors.New("store: no available peer id; sequence exhausted")

const feistelRounds = 4

// idSequenceFile is the sidecar file's on-disk shape: a permutation key and
// a counter, per spec §4.4 / §6 (id_sequence.json: {config, n}).
type idSequenceFile struct {
	Key string `json:"config"`
	N   uint64 `json:"n"`
}

// IDAllocator is a restart-safe iterator over a pseudo-random permutation of
// the 32-bit domain, persisted to a sidecar JSON file. Distinct calls return
// distinct values with overwhelming probability until the domain is
// exhausted; crashes between computing and persisting an allocation may
// burn ids but never repeat one, since the counter is only ever advanced,
// never rewound.
type IDAllocator struct {
	path string
	mu   sync.Mutex
}

// NewIDAllocator builds an allocator backed by the sidecar file at path. The
// file is created lazily, on first Next call, so that constructing an
// allocator never touches disk.
func NewIDAllocator(path string) *IDAllocator {
	return &IDAllocator{path: path}
}

// Next allocates the next peer id, reading the sidecar file, computing the
// permutation at the current counter, and atomically overwriting the file
// with the advanced counter.
func (a *IDAllocator) Next() (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	seq, err := a.load()
	if err != nil {
		return 0, err
	}
	if seq.N > 0xFFFFFFFF {
		return 0, ErrNoAvailableID
	}

	key, err := hex.DecodeString(seq.Key)
	if err != nil {
		return 0, fmt.Errorf("store: decoding id sequence key: %w", err)
	}
	id := feistelPermute(key, uint32(seq.N))
	seq.N++

	if err := a.persist(seq); err != nil {
		return 0, err
	}
	return id, nil
}

func (a *IDAllocator) load() (idSequenceFile, error) {
	data, err := os.ReadFile(a.path)
	if errors.Is(err, os.ErrNotExist) {
		return a.initialize()
	}
	if err != nil {
		return idSequenceFile{}, fmt.Errorf("store: reading id sequence file: %w", err)
	}
	var seq idSequenceFile
	if err := json.Unmarshal(data, &seq); err != nil {
		return idSequenceFile{}, fmt.Errorf("store: parsing id sequence file: %w", err)
	}
	return seq, nil
}

func (a *IDAllocator) initialize() (idSequenceFile, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return idSequenceFile{}, fmt.Errorf("store: generating id sequence key: %w", err)
	}
	seq := idSequenceFile{Key: hex.EncodeToString(key), N: 0}
	if err := a.persist(seq); err != nil {
		return idSequenceFile{}, err
	}
	return seq, nil
}

// persist atomically overwrites the sidecar file: write to a temp file in
// the same directory, then rename over the target, so a crash mid-write
// never leaves a corrupt or partially-written sequence file behind.
func (a *IDAllocator) persist(seq idSequenceFile) error {
	data, err := json.Marshal(seq)
	if err != nil {
		return fmt.Errorf("store: encoding id sequence file: %w", err)
	}
	dir := filepath.Dir(a.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("store: creating id sequence directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(dir, ".id_sequence-*.tmp")
	if err != nil {
		return fmt.Errorf("store: creating temp id sequence file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: writing temp id sequence file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: closing temp id sequence file: %w", err)
	}
	if err := os.Rename(tmpName, a.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: renaming id sequence file: %w", err)
	}
	return nil
}

// feistelPermute computes a bijection on the 32-bit domain keyed by key,
// via a balanced Feistel network over two 16-bit halves. No
// format-preserving-permutation library appears anywhere in the retrieval
// pack, so this composes stdlib crypto/sha256 as the round function by
// hand; a Feistel network is a permutation by construction regardless of
// the round function's own properties, which is all unguessable-ordering
// requires here.
func feistelPermute(key []byte, n uint32) uint32 {
	l := uint16(n >> 16)
	r := uint16(n)
	for round := 0; round < feistelRounds; round++ {
		f := feistelRound(key, round, r)
		l, r = r, l^f
	}
	return uint32(l)<<16 | uint32(r)
}

func feistelRound(key []byte, round int, half uint16) uint16 {
	h := sha256.New()
	h.Write(key)
	var buf [4]byte
	binary.BigEndian.PutUint16(buf[0:2], uint16(round))
	binary.BigEndian.PutUint16(buf[2:4], half)
	h.Write(buf[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint16(sum[:2])
}
