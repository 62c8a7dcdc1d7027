package events

import "encoding/json"

// Event name constants
const (
	CorrectionProgress = "correction.progress"
	CorrectionDone     = "correction.done"
	SessionSuperseded  = "session.superseded"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// CorrectionProgressEvent is the typed payload for correction.progress.
// SessionID is empty for one-shot corrections.
type CorrectionProgressEvent struct {
	RequestID        string    `json:"requestId"`
	SessionID        string    `json:"sessionId,omitempty"`
	Iteration        int       `json:"iteration"`
	Delta            float64   `json:"delta"`
	Currents         []float64 `json:"currents"`
	LimitingJunction int       `json:"limitingJunction"`
	Ts               int64     `json:"ts"`
}

// CorrectionDoneEvent is the typed payload for correction.done. Error holds
// the error kind when the correction failed.
type CorrectionDoneEvent struct {
	RequestID  string  `json:"requestId"`
	SessionID  string  `json:"sessionId,omitempty"`
	Converged  bool    `json:"converged"`
	Iterations int     `json:"iterations"`
	FinalDelta float64 `json:"finalDelta"`
	Error      string  `json:"error,omitempty"`
	Ts         int64   `json:"ts"`
}

// SessionSupersededEvent is the typed payload for session.superseded: the
// run RequestID was discarded because a newer one was submitted.
type SessionSupersededEvent struct {
	RequestID string `json:"requestId"`
	SessionID string `json:"sessionId"`
	Ts        int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.CorrectionProgressEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Iteration, payload.Delta)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
