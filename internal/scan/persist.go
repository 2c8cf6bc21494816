package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/erazemk/stockscan/internal/model"
)

// DefaultKey is the key the session snapshot is stored under.
const DefaultKey = "scan_session"

const snapshotVersion = 1

// KV is a durable byte store for the session snapshot.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type snapshot struct {
	Version int                `json:"version"`
	Session *model.ScanSession `json:"session"`
}

// EncodeSnapshot serializes a session in the versioned snapshot format.
func EncodeSnapshot(s *model.ScanSession) ([]byte, error) {
	data, err := json.Marshal(snapshot{Version: snapshotVersion, Session: s})
	if err != nil {
		return nil, fmt.Errorf("encoding session snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a snapshot. Unknown versions are an error.
func DecodeSnapshot(data []byte) (*model.ScanSession, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding session snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported session snapshot version %d", snap.Version)
	}
	if snap.Session == nil || snap.Session.ID == "" || !model.ValidMode(snap.Session.Mode) {
		return nil, fmt.Errorf("session snapshot has no valid session")
	}
	return snap.Session, nil
}

// persister mirrors the session to a KV. Write failures degrade to an
// in-memory session: they are logged once and never returned to callers.
type persister struct {
	kv      KV
	key     string
	failing bool
}

func (p *persister) save(ctx context.Context, s *model.ScanSession) {
	if p.kv == nil {
		return
	}
	data, err := EncodeSnapshot(s)
	if err == nil {
		err = p.kv.Put(ctx, p.key, data)
	}
	p.record(err, "session", s.ID)
}

func (p *persister) clear(ctx context.Context) {
	if p.kv == nil {
		return
	}
	p.record(p.kv.Delete(ctx, p.key))
}

func (p *persister) record(err error, args ...any) {
	if err != nil {
		if !p.failing {
			slog.Warn("scan session persistence failed, continuing in memory",
				append([]any{"key", p.key, "error", err}, args...)...)
		}
		p.failing = true
		return
	}
	if p.failing {
		slog.Info("scan session persistence recovered", "key", p.key)
		p.failing = false
	}
}

// load returns the stored session, or nil when there is nothing usable.
// Records that cannot be decoded are deleted.
func (p *persister) load(ctx context.Context) (*model.ScanSession, error) {
	if p.kv == nil {
		return nil, nil
	}
	data, ok, err := p.kv.Get(ctx, p.key)
	if err != nil {
		return nil, fmt.Errorf("reading session snapshot: %w", err)
	}
	if !ok {
		return nil, nil
	}

	s, err := DecodeSnapshot(data)
	if err != nil {
		slog.Warn("discarding stored scan session", "key", p.key, "error", err)
		if derr := p.kv.Delete(ctx, p.key); derr != nil {
			return nil, fmt.Errorf("deleting session snapshot: %w", derr)
		}
		return nil, nil
	}
	if s.Queue == nil {
		s.Queue = []model.ScanQueueItem{}
	}
	return s, nil
}

// MemoryKV is a KV held in process memory. It does not survive restarts.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryKV returns an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return append([]byte(nil), v...), ok, nil
}

func (m *MemoryKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
