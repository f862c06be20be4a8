// Package integrity keeps the append-only record of the player's honesty.
//
// Every entry is hash-chained to its predecessor. The integrity score and the audit
// trail quality are pure folds over the recorded events and are never stored.
package integrity

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/Guivernoir/CISO-sim/pkg/canonicalize"
)

// Kind categorizes an integrity event.
type Kind string

const (
	Lie               Kind = "LIE"
	BuriedIncident    Kind = "BURIED_INCIDENT"
	DelayedEscalation Kind = "DELAYED_ESCALATION"
	Consistent        Kind = "CONSISTENT"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case Lie, BuriedIncident, DelayedEscalation, Consistent:
		return k, nil
	}
	return "", fmt.Errorf("unknown integrity event kind %q", s)
}

// MaxMagnitude bounds the severity multiplier of a single event.
const MaxMagnitude = 10.0

const genesis = "genesis"

// Event is an immutable ledger entry.
type Event struct {
	Sequence    uint64  `json:"sequence"`
	Turn        int     `json:"turn"`
	Kind        Kind    `json:"kind"`
	Magnitude   float64 `json:"magnitude"`
	DecisionID  string  `json:"decision_id,omitempty"`
	Description string  `json:"description,omitempty"`
	PrevHash    string  `json:"prev_hash"`
	Hash        string  `json:"hash"`
}

// Ledger is an append-only, hash-chained log of integrity events. The zero value is
// an empty ledger. A Ledger is owned by a single game state; use Clone before handing
// it to another owner.
type Ledger struct {
	events []Event
}

// Record appends e and returns the stored entry with its sequence and hashes filled in.
// Recording always succeeds.
func (l *Ledger) Record(e Event) Event {
	if math.IsNaN(e.Magnitude) {
		e.Magnitude = 0
	}
	e.Magnitude = min(max(e.Magnitude, 0), MaxMagnitude)
	e.Sequence = uint64(len(l.events)) + 1
	e.PrevHash = l.Head()
	e.Hash = entryHash(e)
	l.events = append(l.events, e)
	return e
}

// entryHash covers every field except the hash itself. All fields are finite, so the
// canonical encoding cannot fail.
func entryHash(e Event) string {
	hashInput := struct {
		Seq         uint64  `json:"seq"`
		Turn        int     `json:"turn"`
		Kind        Kind    `json:"kind"`
		Magnitude   float64 `json:"magnitude"`
		DecisionID  string  `json:"decision_id"`
		Description string  `json:"description"`
		PrevHash    string  `json:"prev"`
	}{e.Sequence, e.Turn, e.Kind, e.Magnitude, e.DecisionID, e.Description, e.PrevHash}

	h, _ := canonicalize.CanonicalHash(hashInput)
	return "sha256:" + h
}

// Head returns the hash of the last entry, or "genesis" for an empty ledger.
func (l *Ledger) Head() string {
	if len(l.events) == 0 {
		return genesis
	}
	return l.events[len(l.events)-1].Hash
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return len(l.events)
}

// Events returns a copy of the entries in recording order.
func (l *Ledger) Events() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Clone returns an independent copy.
func (l Ledger) Clone() Ledger {
	if l.events == nil {
		return Ledger{}
	}
	return Ledger{events: l.Events()}
}

// Count returns how many events of kind k were recorded.
func (l *Ledger) Count(k Kind) int {
	n := 0
	for _, e := range l.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// BuriedIncidents returns the number of BuriedIncident events.
func (l *Ledger) BuriedIncidents() int {
	return l.Count(BuriedIncident)
}

// Verify checks kinds, sequence numbers and the integrity of the hash chain.
func (l *Ledger) Verify() error {
	prev := genesis
	for i, e := range l.events {
		if _, err := ParseKind(string(e.Kind)); err != nil {
			return fmt.Errorf("entry %d: %w", i+1, err)
		}
		if e.Sequence != uint64(i)+1 {
			return fmt.Errorf("entry %d: sequence %d out of order", i+1, e.Sequence)
		}
		if e.Magnitude < 0 || e.Magnitude > MaxMagnitude || math.IsNaN(e.Magnitude) {
			return fmt.Errorf("entry %d: magnitude %v out of range", i+1, e.Magnitude)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("chain broken at entry %d: expected prev %s, got %s", i+1, prev, e.PrevHash)
		}
		if want := entryHash(e); e.Hash != want {
			return fmt.Errorf("entry %d: hash mismatch", i+1)
		}
		prev = e.Hash
	}
	return nil
}

type ledgerJSON struct {
	Events []Event `json:"events"`
}

// MarshalJSON encodes the entries.
func (l Ledger) MarshalJSON() ([]byte, error) {
	events := l.events
	if events == nil {
		events = []Event{}
	}
	return json.Marshal(ledgerJSON{Events: events})
}

// UnmarshalJSON decodes the entries and rejects a broken chain.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var raw ledgerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded := Ledger{}
	if len(raw.Events) > 0 {
		decoded.events = raw.Events
	}
	if err := decoded.Verify(); err != nil {
		return err
	}
	*l = decoded
	return nil
}
