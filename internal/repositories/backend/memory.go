package backend

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory es un backend en memoria para tests y demos single-node. No es
// compartido entre nodos: cada proceso ve el suyo.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string]memBlob
}

type memBlob struct {
	data    []byte
	modTime time.Time
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]memBlob)}
}

func (m *Memory) put(key string, data []byte, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = memBlob{data: append([]byte(nil), data...), modTime: at}
}

// PutBlob carga un blob con timestamp arbitrario. Pensado para preparar
// escenarios de limpieza en tests.
func (m *Memory) PutBlob(key string, data []byte, modTime time.Time) {
	m.put(key, data, modTime)
}

func (m *Memory) Verify(_ context.Context, token, nodeID string) error {
	key := probeKey(token, nodeID)
	payload := []byte(token)
	m.put(key, payload, time.Now())

	m.mu.RLock()
	got, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("probe readback missing for %s", key)
	}
	if !bytes.Equal(got.data, payload) {
		return fmt.Errorf("probe readback mismatch for %s", key)
	}

	m.mu.Lock()
	delete(m.blobs, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Generation(_ context.Context) (int64, error) {
	m.mu.RLock()
	b, ok := m.blobs[generationKey]
	m.mu.RUnlock()
	if !ok {
		return 0, nil
	}
	return decodeGeneration(b.data)
}

func (m *Memory) SetGeneration(_ context.Context, gen int64) error {
	m.put(generationKey, encodeGeneration(gen), time.Now())
	return nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]BlobInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []BlobInfo
	for k, b := range m.blobs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, BlobInfo{Key: k, Size: int64(len(b.data)), ModTime: b.modTime})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.blobs, k)
	}
	return nil
}

// Len devuelve la cantidad de blobs vivos.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

var _ Backend = (*Memory)(nil)
