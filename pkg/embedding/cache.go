package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// Key derives the content-address for a text under a given model.
// The model id is part of the key so switching models never reuses
// stale vectors.
func Key(model, text string) string {
	hash := sha256.Sum256([]byte(model + "|" + text))
	return hex.EncodeToString(hash[:])
}

// DiskCache is a two-tier embedding cache: an in-memory map backed by
// one binary file per vector on disk. A nil or empty directory makes it
// memory-only.
type DiskCache struct {
	mu  sync.RWMutex
	mem map[string][]float32
	dir string
}

// NewDiskCache creates a cache rooted at dir, creating it if needed
func NewDiskCache(dir string) (*DiskCache, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create embedding cache dir: %w", err)
		}
	}
	return &DiskCache{
		mem: make(map[string][]float32),
		dir: dir,
	}, nil
}

// Get retrieves a cached embedding, checking memory first, then disk
func (c *DiskCache) Get(_ context.Context, contentHash string) ([]float32, bool) {
	c.mu.RLock()
	vec, ok := c.mem[contentHash]
	c.mu.RUnlock()
	if ok {
		return vec, true
	}

	if c.dir == "" {
		return nil, false
	}

	vec, err := readVectorFile(c.path(contentHash))
	if err != nil {
		return nil, false
	}

	c.mu.Lock()
	c.mem[contentHash] = vec
	c.mu.Unlock()
	return vec, true
}

// Put stores an embedding in memory and on disk. Disk writes go through
// a temp file and rename so concurrent writers of the same hash never
// leave a torn file.
func (c *DiskCache) Put(_ context.Context, contentHash string, embedding []float32) error {
	c.mu.Lock()
	c.mem[contentHash] = embedding
	c.mu.Unlock()

	if c.dir == "" {
		return nil
	}
	return writeVectorFile(c.dir, c.path(contentHash), embedding)
}

// Len returns the number of vectors held in memory
func (c *DiskCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.mem)
}

func (c *DiskCache) path(contentHash string) string {
	return filepath.Join(c.dir, contentHash+".bin")
}

// Vector file layout: uint32 little-endian length, then length float32s
// little-endian.

func readVectorFile(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("vector file %s truncated", path)
	}

	length := binary.LittleEndian.Uint32(data[:4])
	if uint64(len(data)-4) != uint64(length)*4 {
		return nil, fmt.Errorf("vector file %s has inconsistent length", path)
	}

	vec := make([]float32, length)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(data[4+i*4:])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

func writeVectorFile(dir, path string, vec []float32) error {
	buf := make([]byte, 4+len(vec)*4)
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(vec)))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4+i*4:], math.Float32bits(v))
	}

	tmp, err := os.CreateTemp(dir, ".vec-*")
	if err != nil {
		return fmt.Errorf("failed to create temp vector file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write vector file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close vector file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move vector file into place: %w", err)
	}
	return nil
}
