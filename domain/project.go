package domain

import "time"

const (
	// DefaultProjectKey identifies the project tasks land in when the caller
	// names none. It is provisioned on first use.
	DefaultProjectKey  = "BOARD"
	DefaultProjectName = "Board"

	// MaxProjectKeyLen bounds the project key column.
	MaxProjectKeyLen = 16
)

// Project groups tasks on a board.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Key         string    `json:"key"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
