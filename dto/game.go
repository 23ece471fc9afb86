package dto

import (
	"go-khora/engine"
	"go-khora/entities"
)

type CreateGameRequest struct {
	Name        string                 `json:"name" binding:"required"`
	Description string                 `json:"description"`
	MinPlayers  int                    `json:"min_players" binding:"omitempty,min=1"`
	MaxPlayers  int                    `json:"max_players" binding:"omitempty,min=1"`
	TotalRound  int                    `json:"total_round" binding:"omitempty,min=1"`
	IsPublic    *bool                  `json:"is_public"`
	GameOptions map[string]interface{} `json:"game_options"`
}

type ListGamesQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

type GameList struct {
	Games []*entities.Game `json:"games"`
}

type UserRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type PhaseRequest struct {
	Phase entities.Phase `json:"phase" binding:"required"`
}

type TrackUpgradeRequest struct {
	Track              entities.Track `json:"track" binding:"required"`
	UsePhilosophyToken bool           `json:"use_philosophy_token"`
}

type TrackUpgradeResponse struct {
	PlayerState *entities.PlayerState `json:"player_state"`
	Result      engine.UpgradeResult  `json:"result"`
}

// PhilosophyTokenRequest phase 为空时使用游戏当前阶段
type PhilosophyTokenRequest struct {
	Phase entities.Phase `json:"phase"`
}

type DevelopmentResponse struct {
	PlayerState *entities.PlayerState    `json:"player_state"`
	Result      engine.DevelopmentResult `json:"result"`
}

type TaxResponse struct {
	Entries []engine.TaxEntry `json:"entries"`
}
