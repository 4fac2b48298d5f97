package tracker

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// RunState is the content of state.json.
type RunState struct {
	RunID       string            `json:"run_id"`
	PID         int               `json:"pid"`
	ConfigName  string            `json:"config_name"`
	StartedAt   time.Time         `json:"started_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Status      string            `json:"status"`
	LastError   string            `json:"last_error,omitempty"`
	Controllers []ControllerState `json:"controllers"`
}

// ControllerState is one controller's snapshot.
type ControllerState struct {
	Name             string `json:"name"`
	Phase            string `json:"phase"`
	Tries            int    `json:"tries"`
	MaxTries         int    `json:"max_tries"`
	IsInRetryTimeout bool   `json:"is_in_retry_timeout,omitempty"`
	Error            string `json:"error,omitempty"`
	Data             string `json:"data,omitempty"`
}

// Controller returns the snapshot for name.
func (s RunState) Controller(name string) (ControllerState, bool) {
	for _, c := range s.Controllers {
		if c.Name == name {
			return c, true
		}
	}
	return ControllerState{}, false
}

func NewRunID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
