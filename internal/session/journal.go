package session

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	AttemptSubmitted = "submitted"
	AttemptConfirmed = "confirmed"
	AttemptFailed    = "failed"
)

// JoinAttempt tracks one enroll transaction from submission to its
// terminal state.
type JoinAttempt struct {
	AttemptID   string
	TxHash      string
	Address     string
	State       string
	Polls       int
	SubmittedAt time.Time
	LastPollAt  time.Time
	ConfirmedAt time.Time
	LastError   string
}

// JoinJournal stores join attempts by stable attempt_id.
type JoinJournal struct {
	mu    sync.RWMutex
	items map[string]JoinAttempt
}

func NewJoinJournal() *JoinJournal {
	return &JoinJournal{
		items: make(map[string]JoinAttempt),
	}
}

func (j *JoinJournal) Upsert(item JoinAttempt) {
	key := strings.TrimSpace(item.AttemptID)
	if key == "" {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.items[key] = item
}

func (j *JoinJournal) MarkPoll(attemptID string, at time.Time, lastErr string) (JoinAttempt, bool) {
	key := strings.TrimSpace(attemptID)
	j.mu.Lock()
	defer j.mu.Unlock()
	item, ok := j.items[key]
	if !ok {
		return JoinAttempt{}, false
	}
	item.Polls++
	item.LastPollAt = at
	item.LastError = strings.TrimSpace(lastErr)
	j.items[key] = item
	return item, true
}

func (j *JoinJournal) MarkConfirmed(attemptID string, at time.Time) (JoinAttempt, bool) {
	key := strings.TrimSpace(attemptID)
	j.mu.Lock()
	defer j.mu.Unlock()
	item, ok := j.items[key]
	if !ok {
		return JoinAttempt{}, false
	}
	item.State = AttemptConfirmed
	item.ConfirmedAt = at
	item.LastError = ""
	j.items[key] = item
	return item, true
}

func (j *JoinJournal) MarkFailed(attemptID string, at time.Time, lastErr string) (JoinAttempt, bool) {
	key := strings.TrimSpace(attemptID)
	j.mu.Lock()
	defer j.mu.Unlock()
	item, ok := j.items[key]
	if !ok {
		return JoinAttempt{}, false
	}
	item.State = AttemptFailed
	item.LastPollAt = at
	item.LastError = strings.TrimSpace(lastErr)
	j.items[key] = item
	return item, true
}

func (j *JoinJournal) Get(attemptID string) (JoinAttempt, bool) {
	key := strings.TrimSpace(attemptID)
	j.mu.RLock()
	defer j.mu.RUnlock()
	item, ok := j.items[key]
	return item, ok
}

func (j *JoinJournal) List() []JoinAttempt {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]JoinAttempt, 0, len(j.items))
	for _, item := range j.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].SubmittedAt.Equal(out[k].SubmittedAt) {
			return out[i].AttemptID < out[k].AttemptID
		}
		return out[i].SubmittedAt.Before(out[k].SubmittedAt)
	})
	return out
}
