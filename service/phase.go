package service

import (
	"context"

	"go-khora/apperr"
	"go-khora/catalog"
	"go-khora/engine"
	"go-khora/entities"

	"go.uber.org/zap"
)

// ChangePhase 房主切换阶段。校验和写入在同一个乐观锁事务里，两个房主请求不会交错
func (s *Service) ChangePhase(ctx context.Context, gameID, callerID string, requested entities.Phase) (*entities.Game, error) {
	var staged engine.Transition
	g, err := s.store.UpdateGame(ctx, gameID, func(g *entities.Game) error {
		if err := engine.RequireHost(g, callerID); err != nil {
			return err
		}
		if g.Status.Finished() {
			return apperr.Validation("Game is already %s", g.Status)
		}
		staged = engine.NewGameState(g).WithClock(s.now).ValidatePhaseTransition(requested)
		if !staged.Valid {
			return apperr.Validation("%s", staged.Reason)
		}
		staged.Updates.Apply(g)
		g.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("阶段切换", zap.String("game_id", gameID), zap.String("phase", string(g.CurrentPhase)), zap.Int("round", g.CurrentRound))
	s.notify(ctx, EventPhaseChanged, gameID, staged.Updates)
	return g, nil
}

// StartSetup 大厅人数够了以后进入城市分配
func (s *Service) StartSetup(ctx context.Context, gameID, callerID string) (*entities.Game, error) {
	participants, err := s.store.ListParticipants(ctx, gameID)
	if err != nil {
		return nil, err
	}
	active := len(engine.ActiveParticipants(participants))
	return s.updateStatus(ctx, gameID, callerID, func(g *entities.Game) (engine.GameUpdate, error) {
		return engine.StartSetup(g, active, s.now())
	})
}

func (s *Service) StartGame(ctx context.Context, gameID, callerID string) (*entities.Game, error) {
	participants, err := s.store.ListParticipants(ctx, gameID)
	if err != nil {
		return nil, err
	}
	states, err := s.store.ListPlayerStates(ctx, gameID)
	if err != nil {
		return nil, err
	}
	active := engine.ActiveParticipants(participants)
	return s.updateStatus(ctx, gameID, callerID, func(g *entities.Game) (engine.GameUpdate, error) {
		return engine.StartGame(g, active, states, s.now())
	})
}

// FinishGame 最后一回合结束后由房主结算
func (s *Service) FinishGame(ctx context.Context, gameID, callerID string) (*entities.Game, error) {
	return s.updateStatus(ctx, gameID, callerID, func(g *entities.Game) (engine.GameUpdate, error) {
		return engine.FinishGame(g, s.now())
	})
}

func (s *Service) updateStatus(ctx context.Context, gameID, callerID string, plan func(*entities.Game) (engine.GameUpdate, error)) (*entities.Game, error) {
	g, err := s.store.UpdateGame(ctx, gameID, func(g *entities.Game) error {
		if err := engine.RequireHost(g, callerID); err != nil {
			return err
		}
		u, err := plan(g)
		if err != nil {
			return err
		}
		u.Apply(g)
		g.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("游戏状态变更", zap.String("game_id", gameID), zap.String("status", string(g.Status)))
	s.notify(ctx, EventStatusChanged, gameID, g)
	return g, nil
}

// CityAssignment 单个玩家的城市分配结果
type CityAssignment struct {
	ParticipantID string               `json:"participant_id"`
	PlayerNumber  int                  `json:"player_number"`
	PlayerStateID string               `json:"player_state_id,omitempty"`
	CityID        string               `json:"city_id"`
	CityName      string               `json:"city_name"`
	Effect        *engine.EffectReport `json:"effect,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// AssignStartingCities 洗牌后按玩家编号轮流分配城市，并执行城市的起始效果。
// 已经有城市的玩家跳过；每个玩家独立写入，某个玩家失败不会回滚其他人
func (s *Service) AssignStartingCities(ctx context.Context, gameID, callerID string) ([]CityAssignment, error) {
	g, participants, err := s.loadRoster(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := engine.RequireHost(g, callerID); err != nil {
		return nil, err
	}
	if g.Status != entities.GameStatusSetup {
		return nil, apperr.Validation("Cities can only be assigned during setup, current status is %s", g.Status)
	}
	active := engine.ActiveParticipants(participants)
	if len(active) == 0 {
		return nil, apperr.Validation("No active participants")
	}
	states, err := s.store.ListPlayerStates(ctx, gameID)
	if err != nil {
		return nil, err
	}
	// 只给还没有城市的在场玩家分配，setup 阶段后加入的玩家可以补分
	taken := make(map[string]bool, len(states))
	assigned := make(map[string]bool, len(states))
	for _, ps := range states {
		if ps.CityID != "" {
			taken[ps.CityID] = true
			assigned[ps.ParticipantID] = true
		}
	}
	pending := make([]*entities.Participant, 0, len(active))
	for _, p := range active {
		if !assigned[p.ID] {
			pending = append(pending, p)
		}
	}
	if len(pending) == 0 {
		return nil, apperr.Validation("Cities have already been assigned")
	}

	cities := catalog.Cities()
	s.shuffle(len(cities), func(i, j int) { cities[i], cities[j] = cities[j], cities[i] })
	// 优先使用没被占用的城市，玩家比城市多时才重复
	free := make([]catalog.City, 0, len(cities))
	for _, c := range cities {
		if !taken[c.ID] {
			free = append(free, c)
		}
	}
	if len(free) == 0 {
		free = cities
	}
	rules := s.rulesFor(g.GameOptions)

	results := make([]CityAssignment, 0, len(pending))
	failed := 0
	for i, p := range pending {
		city := free[i%len(free)]
		res := CityAssignment{ParticipantID: p.ID, PlayerNumber: p.PlayerNumber, CityID: city.ID, CityName: city.Name}
		ps, err := s.assignCity(ctx, g, p, city, rules, &res)
		if err != nil {
			failed++
			res.Error = apperr.Message(err)
			s.log.Error("分配城市失败", zap.String("game_id", gameID), zap.String("participant_id", p.ID), zap.Error(err))
		} else {
			res.PlayerStateID = ps.ID
		}
		results = append(results, res)
	}

	s.notify(ctx, EventCitiesAssigned, gameID, results)
	if failed > 0 {
		return results, apperr.Consistency("%d of %d city assignments failed", failed, len(pending))
	}
	return results, nil
}

func (s *Service) assignCity(ctx context.Context, g *entities.Game, p *entities.Participant, city catalog.City, rules gameRules, res *CityAssignment) (*entities.PlayerState, error) {
	ps, err := s.ensurePlayerState(ctx, g.ID, p.ID, rules)
	if err != nil {
		return nil, err
	}
	return s.store.UpdatePlayerState(ctx, ps.ID, func(ps *entities.PlayerState) error {
		if ps.CityID != "" {
			return apperr.Validation("Player %d already has city %s", p.PlayerNumber, ps.CityID)
		}
		now := s.now()
		ps.CityID = city.ID
		ps.CityDevelopmentLevel = 0
		report := engine.ApplyEffect(ps, city.StartingEffect, rules.policy)
		if report.Warning != "" {
			s.log.Warn("起始效果未生效", zap.String("game_id", g.ID), zap.String("city", city.ID), zap.String("warning", report.Warning))
		}
		ps.UpdatedAt = now
		res.Effect = &report
		return nil
	})
}

// ensurePlayerState 参与者还没有玩家状态时新建一条
func (s *Service) ensurePlayerState(ctx context.Context, gameID, participantID string, rules gameRules) (*entities.PlayerState, error) {
	ps, err := s.store.GetPlayerStateByParticipant(ctx, participantID)
	if err == nil {
		return ps, nil
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}
	ps = entities.NewPlayerState(s.newID(), gameID, participantID, rules.drachmas, rules.philosophy, s.now())
	if err := s.store.CreatePlayerState(ctx, ps); err != nil {
		if isDuplicate(err) {
			return s.store.GetPlayerStateByParticipant(ctx, participantID)
		}
		return nil, err
	}
	return ps, nil
}
