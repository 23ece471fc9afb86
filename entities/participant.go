package entities

import "time"

type LeftReason string

const (
	LeftReasonNone         LeftReason = ""
	LeftReasonLeft         LeftReason = "left"
	LeftReasonDisconnected LeftReason = "disconnected"
	LeftReasonKicked       LeftReason = "kicked"
)

type Participant struct {
	ID           string     `json:"id"`
	GameID       string     `json:"game_id"`
	UserID       string     `json:"user_id"`
	PlayerNumber int        `json:"player_number"`
	IsHost       bool       `json:"is_host"`
	IsActive     bool       `json:"is_active"`
	JoinedAt     time.Time  `json:"joined_at"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
	LeftReason   LeftReason `json:"left_reason,omitempty"`
	Version      int64      `json:"version"`
}

func (p *Participant) Kicked() bool {
	return p.LeftReason == LeftReasonKicked
}
