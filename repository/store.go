// Package repository 游戏数据的持久化。所有修改都走乐观锁：读出记录、执行纯函数修改、
// 版本号没变才写回，冲突时重试。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go-khora/apperr"
	"go-khora/entities"
)

const DefaultMaxRetries = 10

var (
	// ErrDuplicate 违反唯一约束：同一局里重复的 user_id、player_number 或者重复的 player state
	ErrDuplicate = errors.New("duplicate record")
	// ErrVersionConflict 乐观锁重试次数用完
	ErrVersionConflict = errors.New("version conflict")
)

// GameFilter 列表查询条件，零值表示不过滤
type GameFilter struct {
	PublicOnly bool
	Statuses   []entities.GameStatus
	Limit      int
}

func (f GameFilter) match(g *entities.Game) bool {
	if f.PublicOnly && !g.IsPublic {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if g.Status == s {
			return true
		}
	}
	return false
}

// Store 核心逻辑依赖的持久化接口。Update* 的 fn 返回错误时不写入任何数据
type Store interface {
	CreateGame(ctx context.Context, g *entities.Game) error
	GetGame(ctx context.Context, id string) (*entities.Game, error)
	ListGames(ctx context.Context, filter GameFilter) ([]*entities.Game, error)
	UpdateGame(ctx context.Context, id string, fn func(*entities.Game) error) (*entities.Game, error)

	InsertParticipant(ctx context.Context, p *entities.Participant) error
	GetParticipant(ctx context.Context, id string) (*entities.Participant, error)
	ListParticipants(ctx context.Context, gameID string) ([]*entities.Participant, error)
	UpdateParticipant(ctx context.Context, id string, fn func(*entities.Participant) error) (*entities.Participant, error)

	CreatePlayerState(ctx context.Context, ps *entities.PlayerState) error
	GetPlayerState(ctx context.Context, id string) (*entities.PlayerState, error)
	GetPlayerStateByParticipant(ctx context.Context, participantID string) (*entities.PlayerState, error)
	ListPlayerStates(ctx context.Context, gameID string) ([]*entities.PlayerState, error)
	UpdatePlayerState(ctx context.Context, id string, fn func(*entities.PlayerState) error) (*entities.PlayerState, error)

	Close() error
}

func notFound(what, id string) error {
	return apperr.NotFound("%s %s not found", what, id)
}

// withRetry attempt 返回 false 表示版本冲突需要重来
func withRetry(ctx context.Context, maxRetries int, what, id string, attempt func() (bool, error)) error {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	for i := 0; i < maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := attempt()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return apperr.Conflict(ErrVersionConflict, "Too many concurrent updates on %s %s, please retry", what, id)
}

// 记录统一用 json 存储，sql 的 data 列、redis 的 value 和内存存储共用
func encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("序列化失败: %w", err)
	}
	return data, nil
}

func decode[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("反序列化失败: %w", err)
	}
	return &v, nil
}
