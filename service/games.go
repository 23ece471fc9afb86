package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go-khora/apperr"
	"go-khora/engine"
	"go-khora/entities"
	"go-khora/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateGameInput struct {
	Name        string
	Description string
	MinPlayers  int
	MaxPlayers  int
	TotalRound  int
	IsPublic    *bool
	GameOptions map[string]interface{}
}

// GameDetail 游戏页面需要的全部数据
type GameDetail struct {
	Game         *entities.Game          `json:"game"`
	Participants []*entities.Participant `json:"participants"`
	PlayerStates []*entities.PlayerState `json:"player_states"`
}

// listedStatuses 大厅列表里展示的状态
var listedStatuses = []entities.GameStatus{
	entities.GameStatusLobby,
	entities.GameStatusSetup,
	entities.GameStatusStarted,
	entities.GameStatusInProgress,
}

// 生成唯一加入码（例如 6位）
func newJoinCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

// CreateGame 新建的游戏处于等待室，创建者作为1号玩家和房主加入
func (s *Service) CreateGame(ctx context.Context, userID string, in CreateGameInput) (*GameDetail, error) {
	if userID == "" {
		return nil, apperr.Validation("Missing userId")
	}
	if _, err := DecodeGameOptions(in.GameOptions); err != nil {
		return nil, err
	}

	now := s.now()
	g := engine.InitNewGame(engine.NewGameParams{
		ID:          s.newID(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		CreatedBy:   userID,
		MinPlayers:  in.MinPlayers,
		MaxPlayers:  in.MaxPlayers,
		TotalRound:  in.TotalRound,
		IsPublic:    in.IsPublic,
		JoinCode:    newJoinCode(),
		GameOptions: in.GameOptions,
	}, now)
	g.Status = entities.GameStatusLobby
	if err := engine.ValidateNewGame(g); err != nil {
		return nil, err
	}
	if err := s.store.CreateGame(ctx, g); err != nil {
		return nil, fmt.Errorf("创建游戏失败: %w", err)
	}

	plan, err := engine.PlanJoin(g, nil, userID, s.newID(), now)
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertParticipant(ctx, plan.Participant); err != nil {
		s.log.Error("房主加入游戏失败", zap.String("game_id", g.ID), zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("房主加入游戏失败: %w", err)
	}

	s.log.Info("游戏创建成功", zap.String("game_id", g.ID), zap.String("created_by", userID))
	s.notify(ctx, EventGameCreated, g.ID, g)
	return &GameDetail{Game: g, Participants: []*entities.Participant{plan.Participant}}, nil
}

func (s *Service) ListGames(ctx context.Context, limit int) ([]*entities.Game, error) {
	games, err := s.store.ListGames(ctx, repository.GameFilter{PublicOnly: true, Statuses: listedStatuses, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("获取游戏列表失败: %w", err)
	}
	return games, nil
}

func (s *Service) GetGame(ctx context.Context, gameID string) (*GameDetail, error) {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	participants, err := s.store.ListParticipants(ctx, gameID)
	if err != nil {
		return nil, err
	}
	states, err := s.store.ListPlayerStates(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return &GameDetail{Game: g, Participants: participants, PlayerStates: states}, nil
}

// loadRoster 游戏和它的参与者
func (s *Service) loadRoster(ctx context.Context, gameID string) (*entities.Game, []*entities.Participant, error) {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	participants, err := s.store.ListParticipants(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	return g, participants, nil
}

// isDuplicate 唯一约束冲突，通常是并发加入抢了同一个编号
func isDuplicate(err error) bool {
	return errors.Is(err, repository.ErrDuplicate)
}
