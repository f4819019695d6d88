// Package session persists conversations. Completed turns are appended
// atomically: a turn is either fully written or absent.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medigenius/medigenius/internal/risk"
)

// ErrNotFound indicates the requested session does not exist.
var ErrNotFound = errors.New("session not found")

// Roles stored in the messages table.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session is one conversation.
type Session struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single stored message. Source carries the provenance tag on
// assistant messages and is empty on user messages. Risk is present only
// when an assessment was attached to the answer.
type Message struct {
	ID             uuid.UUID        `json:"id"`
	SessionID      uuid.UUID        `json:"session_id"`
	SequenceNumber int              `json:"sequence_number"`
	Role           string           `json:"role"`
	Content        string           `json:"content"`
	Source         string           `json:"source,omitempty"`
	Risk           *risk.Assessment `json:"risk,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Turn is one completed user/assistant exchange, persisted as a unit.
type Turn struct {
	UserText   string
	AnswerText string
	Source     string
	Risk       *risk.Assessment
}
