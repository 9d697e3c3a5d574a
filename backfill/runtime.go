package backfill

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Status of the current (or most recent) backfill scan
type Status struct {
	State     string    `json:"state"`
	Message   string    `json:"message,omitempty"`
	Processed int       `json:"processed"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Runtime is where backfill progress is reported, for operators to inspect.
type Runtime interface {
	SetStatus(ctx context.Context, st *Status) error
	GetStatus(ctx context.Context) (*Status, error)
	// Atomically stores st unless a scan is already in progress. An in-progress status which has not been
	// updated for longer than staleAfter belongs to an abandoned scan and can be claimed.
	Claim(ctx context.Context, st *Status, staleAfter time.Duration) (bool, error)
}

func claimable(cur *Status, now time.Time, staleAfter time.Duration) bool {
	if cur == nil || cur.State != StateInProgress {
		return true
	}
	return staleAfter > 0 && now.Sub(cur.UpdatedAt) > staleAfter
}

// MemRuntime keeps the latest status, and the full history of reported states, in memory
type MemRuntime struct {
	lk      sync.Mutex
	current *Status
	history []Status
}

var _ Runtime = (*MemRuntime)(nil)

func NewMemRuntime() *MemRuntime {
	return &MemRuntime{}
}

func (r *MemRuntime) SetStatus(ctx context.Context, st *Status) error {
	r.lk.Lock()
	defer r.lk.Unlock()
	r.set(st)
	return nil
}

func (r *MemRuntime) Claim(ctx context.Context, st *Status, staleAfter time.Duration) (bool, error) {
	r.lk.Lock()
	defer r.lk.Unlock()
	if !claimable(r.current, time.Now(), staleAfter) {
		return false, nil
	}
	r.set(st)
	return true, nil
}

// must hold lk
func (r *MemRuntime) set(st *Status) {
	s := *st
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	r.current = &s
	r.history = append(r.history, s)
}

func (r *MemRuntime) GetStatus(ctx context.Context) (*Status, error) {
	r.lk.Lock()
	defer r.lk.Unlock()
	if r.current == nil {
		return nil, nil
	}
	s := *r.current
	return &s, nil
}

func (r *MemRuntime) History() []Status {
	r.lk.Lock()
	defer r.lk.Unlock()
	return append([]Status(nil), r.history...)
}

// Counts reported states with the given name
func (r *MemRuntime) CountState(state string) int {
	n := 0
	for _, s := range r.History() {
		if s.State == state {
			n++
		}
	}
	return n
}

// LogRuntime wraps another runtime and logs every state transition
type LogRuntime struct {
	Inner  Runtime
	Logger *slog.Logger
}

var _ Runtime = (*LogRuntime)(nil)

func (r *LogRuntime) SetStatus(ctx context.Context, st *Status) error {
	r.Logger.Info("backfill state", "state", st.State, "message", st.Message, "processed", st.Processed)
	backfillState.Reset()
	backfillState.WithLabelValues(st.State).Set(1)
	return r.Inner.SetStatus(ctx, st)
}

func (r *LogRuntime) Claim(ctx context.Context, st *Status, staleAfter time.Duration) (bool, error) {
	ok, err := r.Inner.Claim(ctx, st, staleAfter)
	if err != nil || !ok {
		return ok, err
	}
	r.Logger.Info("backfill state", "state", st.State, "message", st.Message, "processed", st.Processed)
	backfillState.Reset()
	backfillState.WithLabelValues(st.State).Set(1)
	return true, nil
}

func (r *LogRuntime) GetStatus(ctx context.Context) (*Status, error) {
	return r.Inner.GetStatus(ctx)
}
