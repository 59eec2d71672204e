package session

import "time"

// SchemaVersion is written into every persisted record so older readers
// can detect records produced by a newer skeep.
const SchemaVersion = 1

// RecordType identifies session record documents on disk.
const RecordType = "session_record"

// State is the lifecycle state of a logical session.
type State string

const (
	StateActive       State = "ACTIVE"
	StateDisconnected State = "DISCONNECTED"
	StateReconnecting State = "RECONNECTING"
	StateExpired      State = "EXPIRED"
	StateClosed       State = "CLOSED"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateExpired || s == StateClosed
}

func (s State) String() string {
	return string(s)
}

// allowedTransitions encodes the only legal state edges. CLOSED is
// reachable from every non-terminal state via explicit close.
var allowedTransitions = map[State]map[State]struct{}{
	StateActive: {
		StateDisconnected: {},
		StateClosed:       {},
	},
	StateDisconnected: {
		StateReconnecting: {},
		StateExpired:      {},
		StateClosed:       {},
	},
	StateReconnecting: {
		StateActive:       {},
		StateDisconnected: {},
		StateExpired:      {},
		StateClosed:       {},
	},
}

// CanTransition reports whether the edge from -> to is legal.
func CanTransition(from, to State) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// Record is the durable unit of state for one logical human-feedback
// interaction. It survives any number of underlying transports.
//
// Payload is opaque application context (pending feedback draft,
// request correlation id); skeep stores and returns it verbatim and
// never inspects it. Unknown JSON fields are ignored on read so newer
// writers stay compatible with older readers.
type Record struct {
	Type              string     `json:"type"` // "session_record"
	SchemaVersion     int        `json:"schemaVersion"`
	SessionID         string     `json:"session_id"`
	State             State      `json:"state"`
	CreatedAt         time.Time  `json:"created_at"`
	LastActivityAt    time.Time  `json:"last_activity_at"`
	LastHeartbeatAt   time.Time  `json:"last_heartbeat_at"`
	ReconnectAttempts int        `json:"reconnect_attempts"`
	GraceDeadline     *time.Time `json:"grace_deadline,omitempty"`
	Payload           []byte     `json:"payload,omitempty"`
}

// NewRecord creates an ACTIVE record with all timestamps set to now.
func NewRecord(id string, payload []byte, now time.Time) *Record {
	return &Record{
		Type:            RecordType,
		SchemaVersion:   SchemaVersion,
		SessionID:       id,
		State:           StateActive,
		CreatedAt:       now,
		LastActivityAt:  now,
		LastHeartbeatAt: now,
		Payload:         payload,
	}
}

// Clone returns a deep copy so callers can't mutate stored state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.GraceDeadline != nil {
		d := *r.GraceDeadline
		out.GraceDeadline = &d
	}
	if r.Payload != nil {
		out.Payload = append([]byte(nil), r.Payload...)
	}
	return &out
}

// Summary is the administrative listing projection of a Record.
type Summary struct {
	SessionID      string    `json:"session_id"`
	State          State     `json:"state"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Summarize projects a record for administrative listing.
func (r *Record) Summarize() Summary {
	return Summary{
		SessionID:      r.SessionID,
		State:          r.State,
		CreatedAt:      r.CreatedAt,
		LastActivityAt: r.LastActivityAt,
	}
}
