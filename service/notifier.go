package service

import (
	"context"

	"go.uber.org/zap"
)

type EventType string

const (
	EventGameCreated       EventType = "game_created"
	EventPhaseChanged      EventType = "phase_changed"
	EventStatusChanged     EventType = "status_changed"
	EventCitiesAssigned    EventType = "cities_assigned"
	EventPlayerStateChange EventType = "player_state_changed"
	EventTaxCollected      EventType = "tax_collected"
	EventParticipantChange EventType = "participant_changed"
	EventHostChanged       EventType = "host_changed"
)

// Event 状态变化之后通知客户端刷新，推送方式由实现决定
type Event struct {
	Type   EventType   `json:"type"`
	GameID string      `json:"game_id"`
	Data   interface{} `json:"data,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) {}

// LogNotifier 只把事件写进日志
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) Notify(_ context.Context, ev Event) {
	n.Log.Info("游戏事件", zap.String("type", string(ev.Type)), zap.String("game_id", ev.GameID), zap.Any("data", ev.Data))
}
