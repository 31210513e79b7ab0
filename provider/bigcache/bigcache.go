package bigcache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/cacheaside/internal/wire"
	pr "github.com/unkn0wn-root/cacheaside/provider"
)

// Provider adapts bigcache. BigCache has no per-entry TTL, so every value is
// wrapped in an expiring frame and judged on read. LifeWindow still evicts
// everything older than it, including values stored without a TTL; size it
// above the longest logical-expiry horizon you need.
type Provider struct {
	c   *bc.BigCache
	now func() time.Time

	// serializes writes so SetNX and CompareAndDelete are atomic
	mu sync.Mutex
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	LifeWindow         time.Duration // 0 => 24h
	CleanWindow        time.Duration
	Shards             int // power of two
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited

	Now func() time.Time // nil => time.Now
}

func New(cfg Config) (*Provider, error) {
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = 24 * time.Hour
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	conf.Verbose = false
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{c: c, now: now}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, st, err := p.lookup(key)
	if err != nil {
		return nil, false, err
	}
	switch st {
	case live:
		return b, true, nil
	case dead:
		p.mu.Lock()
		p.purge(key)
		p.mu.Unlock()
	}
	return nil, false, nil
}

type state int

const (
	absent state = iota
	live
	dead // expired or corrupt frame
)

// lookup unwraps the frame without modifying the cache.
func (p *Provider) lookup(key string) ([]byte, state, error) {
	raw, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, absent, nil
	}
	if err != nil {
		return nil, absent, err
	}
	payload, expireAt, err := wire.DecodeExpiring(raw)
	if err != nil {
		return nil, dead, nil
	}
	if !expireAt.IsZero() && !p.now().Before(expireAt) {
		return nil, dead, nil
	}
	return payload, live, nil
}

// purge deletes key only if it still holds a dead frame; a writer may have
// replaced it since the caller looked. Callers hold mu.
func (p *Provider) purge(key string) {
	if _, st, _ := p.lookup(key); st == dead {
		_ = p.c.Delete(key)
	}
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.set(key, value, ttl)
}

func (p *Provider) set(key string, value []byte, ttl time.Duration) error {
	var expireAt time.Time
	if ttl > 0 {
		expireAt = p.now().Add(ttl)
	}
	return p.c.Set(key, wire.EncodeExpiring(value, expireAt))
}

func (p *Provider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, st, err := p.lookup(key)
	if err != nil || st == live {
		return false, err
	}
	if err := p.set(key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.del(key)
}

func (p *Provider) del(key string) error {
	if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (p *Provider) CompareAndDelete(_ context.Context, key string, expected []byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, st, err := p.lookup(key)
	if err != nil || st != live || !bytes.Equal(cur, expected) {
		return false, err
	}
	if err := p.del(key); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}
