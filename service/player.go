package service

import (
	"context"

	"go-khora/apperr"
	"go-khora/engine"
	"go-khora/entities"

	"go.uber.org/zap"
)

// PlayerContext 请求者在某局游戏中的身份
type PlayerContext struct {
	Game        *entities.Game
	Participant *entities.Participant
	PlayerState *entities.PlayerState
}

// ResolvePlayer 找到用户在进行中的游戏里的玩家状态，被踢出或不在场的不能操作
func (s *Service) ResolvePlayer(ctx context.Context, gameID, userID string) (*PlayerContext, error) {
	g, participants, err := s.loadRoster(ctx, gameID)
	if err != nil {
		return nil, err
	}
	p := engine.FindParticipant(participants, userID)
	if p == nil || p.Kicked() || !p.IsActive {
		return nil, apperr.Authorization("You are not an active participant of this game")
	}
	if !g.Status.InProgress() {
		return nil, apperr.Validation("Game is not in progress (status: %s)", g.Status)
	}
	ps, err := s.store.GetPlayerStateByParticipant(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &PlayerContext{Game: g, Participant: p, PlayerState: ps}, nil
}

// TokenPhase 以服务端记录的阶段为准，客户端带来的阶段必须一致
func (pc *PlayerContext) TokenPhase(requested entities.Phase) (entities.Phase, error) {
	if requested != "" && requested != pc.Game.CurrentPhase {
		return "", apperr.Validation("Phase mismatch: game is in %s, request says %s", pc.Game.CurrentPhase, requested)
	}
	return pc.Game.CurrentPhase, nil
}

// UpgradeTrack 单行原子操作：检查、扣费、升级、发奖励一起提交
func (s *Service) UpgradeTrack(ctx context.Context, playerStateID string, track entities.Track, usePhilosophyToken bool) (*entities.PlayerState, engine.UpgradeResult, error) {
	var result engine.UpgradeResult
	ps, err := s.store.UpdatePlayerState(ctx, playerStateID, func(ps *entities.PlayerState) error {
		var err error
		result, err = engine.UpgradeTrack(ps, track, usePhilosophyToken, s.now())
		return err
	})
	if err != nil {
		return nil, engine.UpgradeResult{}, err
	}
	s.log.Info("轨道升级", zap.String("player_state_id", playerStateID), zap.String("track", string(track)),
		zap.Int("level", result.Level), zap.Int("cost", result.Cost), zap.Bool("used_token", result.UsedToken))
	s.notify(ctx, EventPlayerStateChange, ps.GameID, ps)
	return ps, result, nil
}

func (s *Service) UsePhilosophyToken(ctx context.Context, playerStateID string, phase entities.Phase) (*entities.PlayerState, error) {
	ps, err := s.store.UpdatePlayerState(ctx, playerStateID, func(ps *entities.PlayerState) error {
		return engine.UsePhilosophyToken(ps, phase, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, EventPlayerStateChange, ps.GameID, ps)
	return ps, nil
}

// PurchaseDevelopment 购买下一级城市发展，效果按游戏的 bonus policy 执行
func (s *Service) PurchaseDevelopment(ctx context.Context, playerStateID string) (*entities.PlayerState, engine.DevelopmentResult, error) {
	current, err := s.store.GetPlayerState(ctx, playerStateID)
	if err != nil {
		return nil, engine.DevelopmentResult{}, err
	}
	g, err := s.store.GetGame(ctx, current.GameID)
	if err != nil {
		return nil, engine.DevelopmentResult{}, err
	}
	rules := s.rulesFor(g.GameOptions)

	var result engine.DevelopmentResult
	ps, err := s.store.UpdatePlayerState(ctx, playerStateID, func(ps *entities.PlayerState) error {
		var err error
		result, err = engine.PurchaseDevelopment(ps, rules.policy, s.now())
		return err
	})
	if err != nil {
		return nil, engine.DevelopmentResult{}, err
	}
	if result.Effect.Warning != "" {
		s.log.Warn("发展效果未生效", zap.String("player_state_id", playerStateID), zap.String("city", result.CityID),
			zap.Int("level", result.Level), zap.String("warning", result.Effect.Warning))
	}
	s.notify(ctx, EventPlayerStateChange, ps.GameID, ps)
	return ps, result, nil
}

// CollectTax 逐个玩家发税收，每行独立提交；失败的行记录在结果里，不影响其他玩家
func (s *Service) CollectTax(ctx context.Context, gameID string) ([]engine.TaxEntry, error) {
	states, err := s.store.ListPlayerStates(ctx, gameID)
	if err != nil {
		return nil, err
	}
	entries := make([]engine.TaxEntry, 0, len(states))
	failed := 0
	for _, snapshot := range states {
		var entry engine.TaxEntry
		_, err := s.store.UpdatePlayerState(ctx, snapshot.ID, func(ps *entities.PlayerState) error {
			entry = engine.CollectTax(ps, s.now())
			return nil
		})
		if err != nil {
			failed++
			entry = engine.TaxEntry{ID: snapshot.ID, OldDrachmas: snapshot.Drachmas, Tax: snapshot.TaxTrack, NewDrachmas: snapshot.Drachmas, Error: apperr.Message(err)}
			s.log.Error("发放税收失败", zap.String("game_id", gameID), zap.String("player_state_id", snapshot.ID), zap.Error(err))
		}
		entries = append(entries, entry)
	}
	s.notify(ctx, EventTaxCollected, gameID, entries)
	if failed > 0 {
		return entries, apperr.Consistency("Tax collection failed for %d of %d players", failed, len(states))
	}
	return entries, nil
}

// RunTaxPhase 房主触发的税收阶段
func (s *Service) RunTaxPhase(ctx context.Context, gameID, callerID string) ([]engine.TaxEntry, error) {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := engine.RequireHost(g, callerID); err != nil {
		return nil, err
	}
	if !g.Status.InProgress() {
		return nil, apperr.Validation("Game is not in progress (status: %s)", g.Status)
	}
	return s.CollectTax(ctx, gameID)
}
