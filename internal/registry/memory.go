package registry

import (
	"context"
	"sync"
	"time"
)

type entryKey struct {
	pkg     string
	chainID int64
}

// Memory is a process-local registry.
type Memory struct {
	mu      sync.RWMutex
	entries map[entryKey]Entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[entryKey]Entry), now: time.Now}
}

func (m *Memory) Label() string { return "memory" }

func (m *Memory) GetURL(ctx context.Context, fullRef string, chainID int64) (string, error) {
	e, ok, err := m.get(fullRef, chainID)
	if err != nil || !ok {
		return "", err
	}
	return e.URL, nil
}

func (m *Memory) GetMetaURL(ctx context.Context, fullRef string, chainID int64) (string, error) {
	e, ok, err := m.get(fullRef, chainID)
	if err != nil || !ok {
		return "", err
	}
	return e.MetaURL, nil
}

func (m *Memory) get(ref string, chainID int64) (Entry, bool, error) {
	key, err := Key(ref)
	if err != nil {
		return Entry{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[entryKey{key, chainID}]
	return e, ok, nil
}

func (m *Memory) Publish(ctx context.Context, names []string, chainID int64, url, metaURL string) ([]string, error) {
	return m.PublishMany(ctx, []PublishCall{{PackagesNames: names, ChainID: chainID, URL: url, MetaURL: metaURL}})
}

// PublishMany validates every call before applying any of them.
func (m *Memory) PublishMany(ctx context.Context, calls []PublishCall) ([]string, error) {
	keys := make([][]string, len(calls))
	for i, c := range calls {
		k, err := validateCall(c)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	var receipts []string
	for i, c := range calls {
		for _, key := range keys[i] {
			m.entries[entryKey{key, c.ChainID}] = Entry{
				Package:   key,
				ChainID:   c.ChainID,
				URL:       c.URL,
				MetaURL:   c.MetaURL,
				Published: now,
			}
			receipts = append(receipts, Receipt(key, c.ChainID))
		}
	}
	return receipts, nil
}

func (m *Memory) List(ctx context.Context) ([]Entry, error) {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	m.mu.RUnlock()
	sortEntries(out)
	return out, nil
}

func (m *Memory) Remove(ctx context.Context, fullRef string, chainID int64) error {
	key, err := Key(fullRef)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.entries, entryKey{key, chainID})
	m.mu.Unlock()
	return nil
}
