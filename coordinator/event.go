package coordinator

// Status values pushed to connected players.
const (
	StatusWaiting = "waiting"
	StatusReady   = "ready"
	StatusPending = "pending"
	StatusResult  = "result"
	StatusError   = "error"
)

// Event kinds, one per streaming operation.
const (
	KindJoin = "join"
	KindMove = "move"
)

// Event is one message on a player's push channel.
type Event struct {
	Kind    string  `json:"kind"`
	MatchID string  `json:"match_id"`
	Status  string  `json:"status"`
	Message string  `json:"message,omitempty"`
	Outcome Outcome `json:"outcome,omitempty"`
	Move1   Move    `json:"player1_move,omitempty"`
	Move2   Move    `json:"player2_move,omitempty"`
}

// Sink is a per-connection push channel. Send returns an error once the
// connection is closed.
type Sink interface {
	Send(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Send(e Event) error { return f(e) }

// ErrorEvent builds the terminal error message for a stream.
func ErrorEvent(kind, matchID string, err error) Event {
	return Event{Kind: kind, MatchID: matchID, Status: StatusError, Message: err.Error()}
}
