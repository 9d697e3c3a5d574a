package automod

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Provider which returns a fixed result (or error) for every call. Useful in tests.
type StaticProvider struct {
	Result *Result
	Err    error

	lk    sync.Mutex
	calls []string
}

var _ Provider = (*StaticProvider)(nil)

func (p *StaticProvider) Name() string {
	return "static"
}

func (p *StaticProvider) Moderate(ctx context.Context, text string) (*Result, error) {
	p.lk.Lock()
	p.calls = append(p.calls, text)
	p.lk.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Result == nil {
		return nil, fmt.Errorf("%w: no static result configured", ErrProvider)
	}
	res := *p.Result
	res.Provider = p.Name()
	return &res, nil
}

// Calls returns the texts passed to Moderate, in order
func (p *StaticProvider) Calls() []string {
	p.lk.Lock()
	defer p.lk.Unlock()
	return append([]string(nil), p.calls...)
}

// Notifier which records notifications in memory. Useful in tests.
type MemNotifier struct {
	lk            sync.Mutex
	Notifications []MemNotification
}

type MemNotification struct {
	Path   string
	Result *Result
	Action string
}

var _ Notifier = (*MemNotifier)(nil)

func (n *MemNotifier) NotifyModerated(ctx context.Context, path string, res *Result, action string) {
	n.lk.Lock()
	defer n.lk.Unlock()
	n.Notifications = append(n.Notifications, MemNotification{Path: path, Result: res, Action: action})
}

// Fixed clock for deterministic metadata timestamps in tests
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestConfigFixture() Config {
	config := DefaultConfig()
	config.CollectionPath = "posts"
	config.TextField = "text"
	return config
}
