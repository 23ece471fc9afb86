package service

import (
	"context"
	"fmt"

	"go-khora/apperr"
	"go-khora/engine"
	"go-khora/entities"

	"go.uber.org/zap"
)

// ErrGameFull 在场人数已达上限
var ErrGameFull = apperr.Validation("Game is full")

// Join 加入游戏。新玩家取最小的空闲编号，并发加入撞到唯一约束时重新计算
func (s *Service) Join(ctx context.Context, gameID, userID string) (*entities.Participant, error) {
	for attempt := 0; attempt < joinRetries; attempt++ {
		g, participants, err := s.loadRoster(ctx, gameID)
		if err != nil {
			return nil, err
		}
		plan, err := engine.PlanJoin(g, participants, userID, s.newID(), s.now())
		if err != nil {
			return nil, err
		}
		if plan.Action == engine.JoinNoop {
			return plan.Participant, nil
		}
		if plan.Action == engine.JoinCreate && !g.Status.PreStart() {
			return nil, apperr.Validation("Game has already started")
		}
		if plan.NeedsSeat() && len(engine.ActiveParticipants(participants)) >= g.MaxPlayers {
			return nil, ErrGameFull
		}

		var p *entities.Participant
		switch plan.Action {
		case engine.JoinCreate:
			err = s.store.InsertParticipant(ctx, plan.Participant)
			p = plan.Participant
			if isDuplicate(err) {
				s.log.Debug("加入冲突，重试", zap.String("game_id", gameID), zap.String("user_id", userID), zap.Int("attempt", attempt))
				continue
			}
		case engine.JoinReactivate:
			p, err = s.store.UpdateParticipant(ctx, plan.Participant.ID, engine.Reactivate)
		}
		if err != nil {
			return nil, err
		}
		s.log.Info("玩家加入", zap.String("game_id", gameID), zap.String("user_id", userID),
			zap.String("action", string(plan.Action)), zap.Int("player_number", p.PlayerNumber))
		s.notify(ctx, EventParticipantChange, gameID, p)
		return p, nil
	}
	return nil, apperr.Conflict(fmt.Errorf("加入游戏[%s]重试次数用完", gameID), "Too many players joining at once, please retry")
}

func (s *Service) findParticipant(ctx context.Context, gameID, userID string) (*entities.Game, []*entities.Participant, *entities.Participant, error) {
	if userID == "" {
		return nil, nil, nil, apperr.Validation("Missing userId")
	}
	g, participants, err := s.loadRoster(ctx, gameID)
	if err != nil {
		return nil, nil, nil, err
	}
	p := engine.FindParticipant(participants, userID)
	if p == nil {
		return nil, nil, nil, apperr.NotFound("Participant %s not found", userID)
	}
	return g, participants, p, nil
}

// Leave 开局前离开释放座位，游戏中离开只记为掉线
func (s *Service) Leave(ctx context.Context, gameID, userID string) (*entities.Participant, error) {
	g, _, p, err := s.findParticipant(ctx, gameID, userID)
	if err != nil {
		return nil, err
	}
	if p.Kicked() {
		return p, nil
	}
	updated, err := s.store.UpdateParticipant(ctx, p.ID, func(p *entities.Participant) error {
		engine.Leave(p, g.Status, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("玩家离开", zap.String("game_id", gameID), zap.String("user_id", userID), zap.String("reason", string(updated.LeftReason)))
	s.notify(ctx, EventParticipantChange, gameID, updated)
	return updated, nil
}

// ReportPresence 等待室的在线心跳，离开过的玩家重新标记为在场
func (s *Service) ReportPresence(ctx context.Context, gameID, userID string) (*entities.Participant, error) {
	g, participants, p, err := s.findParticipant(ctx, gameID, userID)
	if err != nil {
		return nil, err
	}
	if p.Kicked() {
		return nil, apperr.Authorization("You have been kicked from this game.")
	}
	if !p.IsActive && len(engine.ActiveParticipants(participants)) >= g.MaxPlayers {
		return nil, ErrGameFull
	}
	return s.store.UpdateParticipant(ctx, p.ID, engine.Reactivate)
}

// Kick 房主踢人，任何状态下都可以
func (s *Service) Kick(ctx context.Context, gameID, callerID, targetUserID string) (*entities.Participant, error) {
	g, participants, err := s.loadRoster(ctx, gameID)
	if err != nil {
		return nil, err
	}
	target, err := engine.ValidateKick(g, participants, callerID, targetUserID)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateParticipant(ctx, target.ID, func(p *entities.Participant) error {
		if p.Kicked() {
			return apperr.Validation("Participant is already kicked")
		}
		engine.Kick(p, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("玩家被踢出", zap.String("game_id", gameID), zap.String("user_id", targetUserID))
	s.notify(ctx, EventParticipantChange, gameID, updated)
	return updated, nil
}

type StepStatus string

const (
	StepOK                 StepStatus = "ok"
	StepFailed             StepStatus = "failed"
	StepSkipped            StepStatus = "skipped"
	StepCompensated        StepStatus = "compensated"
	StepCompensationFailed StepStatus = "compensation_failed"
)

type PromoteStep struct {
	Name   string     `json:"name"`
	Status StepStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// PromoteReport 转让房主每一步的执行结果
type PromoteReport struct {
	Game   *entities.Game        `json:"game,omitempty"`
	Target *entities.Participant `json:"target,omitempty"`
	Steps  []PromoteStep         `json:"steps"`
}

// promoteStep 一步更新和它的补偿
type promoteStep struct {
	name       string
	skip       bool
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// Promote 把房主转给另一个在场玩家。涉及三行数据，不能在一个事务里完成：
// 按顺序执行，某一步失败就逆序补偿已经完成的步骤，并返回 Consistency 错误和执行报告
func (s *Service) Promote(ctx context.Context, gameID, callerID, targetUserID string) (*PromoteReport, error) {
	g, participants, err := s.loadRoster(ctx, gameID)
	if err != nil {
		return nil, err
	}
	oldHost, target, err := engine.ValidatePromote(g, participants, callerID, targetUserID)
	if err != nil {
		return nil, err
	}

	report := &PromoteReport{}
	setHost := func(id string, isHost bool) func(context.Context) error {
		return func(ctx context.Context) error {
			p, err := s.store.UpdateParticipant(ctx, id, func(p *entities.Participant) error {
				p.IsHost = isHost
				return nil
			})
			if err == nil && id == target.ID {
				report.Target = p
			}
			return err
		}
	}
	setCreator := func(from, to string) func(context.Context) error {
		return func(ctx context.Context) error {
			updated, err := s.store.UpdateGame(ctx, gameID, func(g *entities.Game) error {
				if g.CreatedBy != from {
					return apperr.Authorization("Only the host can do this")
				}
				g.CreatedBy = to
				g.UpdatedAt = s.now()
				return nil
			})
			if err == nil {
				report.Game = updated
			}
			return err
		}
	}

	steps := []promoteStep{
		{name: "transfer_game_host", run: setCreator(callerID, targetUserID), compensate: setCreator(targetUserID, callerID)},
		{name: "demote_old_host", skip: oldHost == nil},
		{name: "promote_target", run: setHost(target.ID, true), compensate: setHost(target.ID, target.IsHost)},
	}
	if oldHost != nil {
		steps[1].run = setHost(oldHost.ID, false)
		steps[1].compensate = setHost(oldHost.ID, oldHost.IsHost)
	}

	done := 0
	var failure error
	for _, step := range steps {
		if step.skip {
			report.Steps = append(report.Steps, PromoteStep{Name: step.name, Status: StepSkipped})
			done++
			continue
		}
		if err := step.run(ctx); err != nil {
			failure = err
			report.Steps = append(report.Steps, PromoteStep{Name: step.name, Status: StepFailed, Error: apperr.Message(err)})
			break
		}
		report.Steps = append(report.Steps, PromoteStep{Name: step.name, Status: StepOK})
		done++
	}

	if failure == nil {
		s.log.Info("房主转让", zap.String("game_id", gameID), zap.String("from", callerID), zap.String("to", targetUserID))
		s.notify(ctx, EventHostChanged, gameID, report)
		return report, nil
	}

	// 第一步就失败说明没有写入任何数据，直接返回原始错误
	if done == 0 {
		return nil, failure
	}
	for i := done - 1; i >= 0; i-- {
		if steps[i].skip {
			continue
		}
		if err := steps[i].compensate(ctx); err != nil {
			report.Steps[i].Status = StepCompensationFailed
			report.Steps[i].Error = apperr.Message(err)
			s.log.Error("房主转让补偿失败", zap.String("game_id", gameID), zap.String("step", steps[i].name), zap.Error(err))
			continue
		}
		report.Steps[i].Status = StepCompensated
	}
	s.log.Error("房主转让失败", zap.String("game_id", gameID), zap.Error(failure))
	s.notify(ctx, EventHostChanged, gameID, report)
	return report, apperr.Consistency("Host transfer failed at step %s: %s", report.Steps[len(report.Steps)-1].Name, apperr.Message(failure))
}
