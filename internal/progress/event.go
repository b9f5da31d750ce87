package progress

import (
	"time"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/quality"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/session"
)

// Event is one progress update of a session. Seq and TS are assigned by the bus.
type Event struct {
	Seq       int64         `json:"seq"`
	TS        time.Time     `json:"ts"`
	SessionID string        `json:"session_id"`
	Phase     session.Phase `json:"phase"`
	Step      string        `json:"step"`
	Detail    string        `json:"detail,omitempty"`
	Progress  float64       `json:"progress"`

	// Set on terminal events only.
	Degraded   bool                `json:"degraded,omitempty"`
	Violations []quality.Violation `json:"violations,omitempty"`
	Failure    *session.Failure    `json:"failure,omitempty"`
}

// Terminal reports whether e ends its session's stream.
func (e Event) Terminal() bool { return e.Phase.Terminal() }
