// Package peers provides an in-memory peer directory: the keyed lookup from
// peer identity to network address the transport layer resolves against.
// The directory owns staleness policy; the transport only reads it.
package peers

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Options tunes directory behavior.
type Options struct {
	// MaxAge makes entries unresolvable when they have not been touched for
	// this long. Zero disables staleness entirely.
	MaxAge time.Duration
}

// List is a read-mostly directory from peer identity to address. It
// implements transport.Directory and transport.Roster. Concurrent reads and
// writes are safe; resolution is deterministic between mutations.
type List[P comparable] struct {
	opts Options

	mu      sync.RWMutex
	entries map[P]*entry
}

type entry struct {
	addr     string
	lastSeen time.Time
}

func New[P comparable](opts Options) *List[P] {
	return &List[P]{opts: opts, entries: make(map[P]*entry)}
}

// Add registers or overwrites a peer's address and refreshes its last-seen
// time.
func (l *List[P]) Add(peer P, addr string) {
	l.mu.Lock()
	l.entries[peer] = &entry{addr: addr, lastSeen: time.Now()}
	l.mu.Unlock()
	zap.L().Debug("peer added", zap.Any("peer", peer), zap.String("addr", addr))
}

// Remove drops a peer from the directory.
func (l *List[P]) Remove(peer P) {
	l.mu.Lock()
	delete(l.entries, peer)
	l.mu.Unlock()
	zap.L().Debug("peer removed", zap.Any("peer", peer))
}

// Touch refreshes a peer's last-seen time, keeping it resolvable under a
// MaxAge policy.
func (l *List[P]) Touch(peer P) {
	l.mu.Lock()
	if e := l.entries[peer]; e != nil {
		e.lastSeen = time.Now()
	}
	l.mu.Unlock()
}

// Resolve returns the peer's address. Entries older than MaxAge (when set)
// resolve as unknown.
func (l *List[P]) Resolve(peer P) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e := l.entries[peer]
	if e == nil {
		return "", false
	}
	if l.opts.MaxAge > 0 && time.Since(e.lastSeen) > l.opts.MaxAge {
		return "", false
	}
	return e.addr, true
}

// Peers returns a snapshot of all currently resolvable peer identities.
func (l *List[P]) Peers() []P {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]P, 0, len(l.entries))
	for p, e := range l.entries {
		if l.opts.MaxAge > 0 && time.Since(e.lastSeen) > l.opts.MaxAge {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Len counts resolvable peers.
func (l *List[P]) Len() int { return len(l.Peers()) }

// LoadFile merges peers from a JSON file of the form {"peer-id": "addr"}.
// parse converts each key to the identity type; identities it rejects fail
// the whole load.
func (l *List[P]) LoadFile(path string, parse func(string) (P, error)) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read peers file: %w", err)
	}
	var raw map[string]string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode peers file: %w", err)
	}
	// deterministic add order keeps logs stable
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p, err := parse(k)
		if err != nil {
			return fmt.Errorf("parse peer id %q: %w", k, err)
		}
		l.Add(p, raw[k])
	}
	zap.L().Info("peers loaded", zap.String("path", path), zap.Int("count", len(raw)))
	return nil
}
