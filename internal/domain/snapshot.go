package domain

// Snapshot is one outbound mutation notification for the presentation side.
// Type is the per-entity monotonic sequence number.
type Snapshot struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	Type uint64 `json:"type"`
	Data any    `json:"data"`
}
