package events

import (
	"context"
	"sync"
)

// MemPublisher is the most naive implementation of a publisher: it keeps every event in memory
type MemPublisher struct {
	lk   sync.Mutex
	buf  []*Event
	Fail error
}

var _ Publisher = (*MemPublisher)(nil)

func NewMemPublisher() *MemPublisher {
	return &MemPublisher{}
}

func (mp *MemPublisher) Publish(ctx context.Context, evt *Event) error {
	mp.lk.Lock()
	defer mp.lk.Unlock()
	if mp.Fail != nil {
		return mp.Fail
	}
	mp.buf = append(mp.buf, evt)
	return nil
}

func (mp *MemPublisher) Events() []*Event {
	mp.lk.Lock()
	defer mp.lk.Unlock()
	return append([]*Event(nil), mp.buf...)
}

func (mp *MemPublisher) Close() error {
	return nil
}
