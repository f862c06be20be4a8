// Package consequence schedules the delayed effects of player choices.
//
// Consequences are ordered by trigger turn, then by the order in which they were
// scheduled, so the same history always materializes the same way.
package consequence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// ErrTriggerInPast is returned when a consequence would trigger before the current turn.
var ErrTriggerInPast = errors.New("consequence trigger turn is before the current turn")

// idNamespace derives stable consequence ids from their position in the history.
var idNamespace = uuid.MustParse("6f1c1f5e-8d0a-4d53-9a57-2b1c0f2f9e43")

// Pending is a consequence that has not materialized yet.
type Pending struct {
	ID               string `json:"id"`
	Sequence         uint64 `json:"sequence"`
	ScheduledTurn    int    `json:"scheduled_turn"`
	TriggerTurn      int    `json:"trigger_turn"`
	OriginDecisionID string `json:"origin_decision_id"`
	Description      string `json:"description,omitempty"`
	Effect           Effect `json:"effect"`
}

func (p Pending) clone() Pending {
	p.Effect = p.Effect.clone()
	return p
}

func less(a, b Pending) bool {
	if a.TriggerTurn != b.TriggerTurn {
		return a.TriggerTurn < b.TriggerTurn
	}
	return a.Sequence < b.Sequence
}

// Scheduler is an ordered queue of pending consequences. The zero value is ready to
// use. It is owned by a single game state; use Clone before sharing.
type Scheduler struct {
	queue   []Pending
	nextSeq uint64
}

// Schedule enqueues p as of currentTurn and returns the stored entry. The sequence,
// scheduled turn and id are assigned here.
func (s *Scheduler) Schedule(currentTurn int, p Pending) (Pending, error) {
	if p.TriggerTurn < currentTurn {
		return Pending{}, fmt.Errorf("%w: trigger %d, current %d", ErrTriggerInPast, p.TriggerTurn, currentTurn)
	}
	if err := p.Effect.Validate(); err != nil {
		return Pending{}, fmt.Errorf("invalid consequence from %s: %w", p.OriginDecisionID, err)
	}

	s.nextSeq++
	p.Sequence = s.nextSeq
	p.ScheduledTurn = currentTurn
	p.ID = uuid.NewSHA1(idNamespace, []byte(p.OriginDecisionID+"/"+strconv.FormatUint(p.Sequence, 10))).String()
	p = p.clone()

	i := sort.Search(len(s.queue), func(i int) bool { return less(p, s.queue[i]) })
	s.queue = append(s.queue, Pending{})
	copy(s.queue[i+1:], s.queue[i:])
	s.queue[i] = p
	return p.clone(), nil
}

// DrainDue removes and returns every consequence with TriggerTurn <= turn, in order.
// A second call for the same turn returns nothing.
func (s *Scheduler) DrainDue(turn int) []Pending {
	n := sort.Search(len(s.queue), func(i int) bool { return s.queue[i].TriggerTurn > turn })
	if n == 0 {
		return nil
	}
	due := make([]Pending, n)
	copy(due, s.queue[:n])
	if n == len(s.queue) {
		s.queue = nil
		return due
	}
	rest := make([]Pending, len(s.queue)-n)
	copy(rest, s.queue[n:])
	s.queue = rest
	return due
}

// Pending returns a copy of the queue in materialization order.
func (s *Scheduler) Pending() []Pending {
	out := make([]Pending, len(s.queue))
	for i, p := range s.queue {
		out[i] = p.clone()
	}
	return out
}

// Len returns the number of pending consequences.
func (s *Scheduler) Len() int {
	return len(s.queue)
}

// Clone returns an independent copy.
func (s Scheduler) Clone() Scheduler {
	c := Scheduler{nextSeq: s.nextSeq}
	if s.queue != nil {
		c.queue = s.Pending()
	}
	return c
}

// SnapshotHash returns a deterministic hash of the queue.
func (s *Scheduler) SnapshotHash() string {
	data, _ := json.Marshal(s)
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Validate checks ordering, sequence numbers and payloads.
func (s *Scheduler) Validate() error {
	seen := make(map[uint64]bool, len(s.queue))
	for i, p := range s.queue {
		if p.Sequence == 0 || p.Sequence > s.nextSeq || seen[p.Sequence] {
			return fmt.Errorf("consequence %d: bad sequence %d", i, p.Sequence)
		}
		seen[p.Sequence] = true
		if p.TriggerTurn < p.ScheduledTurn {
			return fmt.Errorf("consequence %d: %w", i, ErrTriggerInPast)
		}
		if i > 0 && !less(s.queue[i-1], p) {
			return fmt.Errorf("consequence %d: queue out of order", i)
		}
		if err := p.Effect.Validate(); err != nil {
			return fmt.Errorf("consequence %d: %w", i, err)
		}
	}
	return nil
}

type schedulerJSON struct {
	NextSequence uint64    `json:"next_sequence"`
	Pending      []Pending `json:"pending"`
}

// MarshalJSON encodes the queue and the sequence counter.
func (s Scheduler) MarshalJSON() ([]byte, error) {
	pending := s.queue
	if pending == nil {
		pending = []Pending{}
	}
	return json.Marshal(schedulerJSON{NextSequence: s.nextSeq, Pending: pending})
}

// UnmarshalJSON decodes and validates the queue.
func (s *Scheduler) UnmarshalJSON(data []byte) error {
	var raw schedulerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded := Scheduler{nextSeq: raw.NextSequence}
	if len(raw.Pending) > 0 {
		decoded.queue = raw.Pending
	}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*s = decoded
	return nil
}
