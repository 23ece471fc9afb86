package engine

import (
	"time"

	"go-khora/apperr"
	"go-khora/entities"
)

const kickedReason = "You have been kicked from this game."

// FindParticipant 按用户查找参与者记录
func FindParticipant(participants []*entities.Participant, userID string) *entities.Participant {
	for _, p := range participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func ActiveParticipants(participants []*entities.Participant) []*entities.Participant {
	active := make([]*entities.Participant, 0, len(participants))
	for _, p := range participants {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active
}

// NextPlayerNumber 返回最小的未使用编号，从1开始
func NextPlayerNumber(participants []*entities.Participant) int {
	used := make(map[int]bool, len(participants))
	for _, p := range participants {
		used[p.PlayerNumber] = true
	}
	n := 1
	for used[n] {
		n++
	}
	return n
}

type JoinAction string

const (
	JoinCreate     JoinAction = "create"
	JoinReactivate JoinAction = "reactivate"
	JoinNoop       JoinAction = "noop"
)

// JoinPlan 加入游戏的计划：新建、重新激活或者已经在场
type JoinPlan struct {
	Action      JoinAction
	Participant *entities.Participant
}

// NeedsSeat 是否会占用一个新的在场名额
func (p JoinPlan) NeedsSeat() bool {
	return p.Action == JoinCreate || (p.Action == JoinReactivate && !p.Participant.IsActive)
}

// PlanJoin 同一个用户在同一局游戏里只有一条记录，被踢出的不能自己回来
func PlanJoin(g *entities.Game, participants []*entities.Participant, userID, newID string, now time.Time) (JoinPlan, error) {
	if userID == "" {
		return JoinPlan{}, apperr.Validation("Missing userId")
	}
	if g.Status.Finished() {
		return JoinPlan{}, apperr.Validation("Game is already %s", g.Status)
	}

	existing := FindParticipant(participants, userID)
	if existing == nil {
		return JoinPlan{Action: JoinCreate, Participant: &entities.Participant{
			ID:           newID,
			GameID:       g.ID,
			UserID:       userID,
			PlayerNumber: NextPlayerNumber(participants),
			IsHost:       g.CreatedBy == userID,
			IsActive:     true,
			JoinedAt:     now,
		}}, nil
	}
	if existing.Kicked() {
		return JoinPlan{}, apperr.Authorization(kickedReason)
	}
	if existing.IsActive && existing.LeftAt == nil && existing.LeftReason == entities.LeftReasonNone {
		return JoinPlan{Action: JoinNoop, Participant: existing}, nil
	}
	return JoinPlan{Action: JoinReactivate, Participant: existing}, nil
}

// Reactivate 重新激活，清空离开信息
func Reactivate(p *entities.Participant) error {
	if p.Kicked() {
		return apperr.Authorization(kickedReason)
	}
	p.IsActive = true
	p.LeftAt = nil
	p.LeftReason = entities.LeftReasonNone
	return nil
}

// Leave 开局前离开会释放座位；游戏中只记录掉线，保留座位方便重连
func Leave(p *entities.Participant, status entities.GameStatus, now time.Time) {
	t := now
	p.LeftAt = &t
	if status.PreStart() {
		p.IsActive = false
		p.LeftReason = entities.LeftReasonLeft
		return
	}
	p.LeftReason = entities.LeftReasonDisconnected
}

// Kick 踢出后不能自己重新加入
func Kick(p *entities.Participant, now time.Time) {
	t := now
	p.IsActive = false
	p.LeftAt = &t
	p.LeftReason = entities.LeftReasonKicked
}

// RequireHost 房主校验
func RequireHost(g *entities.Game, callerID string) error {
	if !g.IsHost(callerID) {
		return apperr.Authorization("Only the host can do this")
	}
	return nil
}

// ValidateKick 只有房主能踢人，不能踢自己
func ValidateKick(g *entities.Game, participants []*entities.Participant, callerID, targetUserID string) (*entities.Participant, error) {
	if err := RequireHost(g, callerID); err != nil {
		return nil, err
	}
	if targetUserID == callerID {
		return nil, apperr.Validation("Host cannot kick themselves")
	}
	target := FindParticipant(participants, targetUserID)
	if target == nil {
		return nil, apperr.NotFound("Participant %s not found", targetUserID)
	}
	if target.Kicked() {
		return nil, apperr.Validation("Participant is already kicked")
	}
	return target, nil
}

// ValidatePromote 返回旧房主和目标参与者；旧房主记录可能不存在（为 nil）
func ValidatePromote(g *entities.Game, participants []*entities.Participant, callerID, targetUserID string) (oldHost, target *entities.Participant, err error) {
	if err := RequireHost(g, callerID); err != nil {
		return nil, nil, err
	}
	if targetUserID == g.CreatedBy {
		return nil, nil, apperr.Validation("Participant is already the host")
	}
	target = FindParticipant(participants, targetUserID)
	if target == nil {
		return nil, nil, apperr.NotFound("Participant %s not found", targetUserID)
	}
	if !target.IsActive {
		return nil, nil, apperr.Validation("Only active participants can become host")
	}
	return FindParticipant(participants, g.CreatedBy), target, nil
}
