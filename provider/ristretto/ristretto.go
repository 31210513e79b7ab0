package ristretto

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/cacheaside/provider"
)

// Provider keeps entries in a process-local ristretto cache. Locks taken
// through it only exclude holders inside this process.
type Provider struct {
	c    *rc.Cache
	cost func(key string, value []byte) int64

	// serializes writes so SetNX and CompareAndDelete are atomic
	mu sync.Mutex
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
	// Cost of one entry; nil => len(key)+len(value).
	Cost func(key string, value []byte) int64
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	cost := cfg.Cost
	if cost == nil {
		cost = func(key string, value []byte) int64 { return int64(len(key) + len(value)) }
	}
	return &Provider{c: c, cost: cost}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		return nil, false, nil
	}
	if b == nil {
		b = []byte{}
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.set(key, value, ttl)
}

// set writes and waits for the write to become visible. Caller holds mu.
func (p *Provider) set(key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	v := append([]byte{}, value...)
	if !p.c.SetWithTTL(key, v, p.cost(key, v), ttl) {
		return pr.ErrRejected
	}
	p.c.Wait()
	return nil
}

func (p *Provider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.c.Get(key); ok {
		return false, nil
	}
	if err := p.set(key, value, ttl); err != nil {
		return false, err
	}
	// the admission policy may still have dropped the entry
	_, ok := p.c.Get(key)
	return ok, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.c.Del(key)
	return nil
}

func (p *Provider) CompareAndDelete(_ context.Context, key string, expected []byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.c.Get(key)
	if !ok {
		return false, nil
	}
	if b, _ := v.([]byte); !bytes.Equal(b, expected) {
		return false, nil
	}
	p.c.Del(key)
	return true, nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto's counters when Config.Metrics is set.
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
