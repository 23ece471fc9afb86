// Package engine 游戏推进的核心规则：阶段状态机、轨道升级、城市效果、参与者生命周期。
// 这里只做纯内存的状态变换，读写数据库由 service 负责。
package engine

import (
	"time"

	"go-khora/apperr"
	"go-khora/entities"
)

const lastRoundReason = "Cannot proceed to next phase: last round reached. Start final scoring."

// GameUpdate 待写入的游戏字段，nil 表示不修改
type GameUpdate struct {
	CurrentPhase   *entities.Phase      `json:"current_phase,omitempty"`
	CurrentRound   *int                 `json:"current_round,omitempty"`
	Status         *entities.GameStatus `json:"status,omitempty"`
	SetupStartedAt *time.Time           `json:"setup_started_at,omitempty"`
	StartedAt      *time.Time           `json:"started_at,omitempty"`
	EndedAt        *time.Time           `json:"ended_at,omitempty"`
}

func (u GameUpdate) Apply(g *entities.Game) {
	if u.CurrentPhase != nil {
		g.CurrentPhase = *u.CurrentPhase
	}
	if u.CurrentRound != nil {
		g.CurrentRound = *u.CurrentRound
	}
	if u.Status != nil {
		g.Status = *u.Status
	}
	if u.SetupStartedAt != nil {
		t := *u.SetupStartedAt
		g.SetupStartedAt = &t
	}
	if u.StartedAt != nil {
		t := *u.StartedAt
		g.StartedAt = &t
	}
	if u.EndedAt != nil {
		t := *u.EndedAt
		g.EndedAt = &t
	}
}

// Transition 阶段切换的校验结果，Valid 为 false 时不能写入任何字段
type Transition struct {
	Valid   bool        `json:"valid"`
	Reason  string      `json:"reason,omitempty"`
	Updates *GameUpdate `json:"updates,omitempty"`
}

type GameState struct {
	game *entities.Game
	now  func() time.Time
}

func NewGameState(game *entities.Game) *GameState {
	return &GameState{game: game, now: time.Now}
}

// WithClock 测试用，固定时间
func (s *GameState) WithClock(now func() time.Time) *GameState {
	s.now = now
	return s
}

func (s *GameState) Game() *entities.Game { return s.game }

// NextPhase 最后一个阶段之后回到 Event Announcement，不会回到 Setup
func (s *GameState) NextPhase() entities.Phase {
	idx := s.game.CurrentPhase.Index()
	if idx == -1 || idx == len(entities.Phases)-1 {
		return entities.Phases[1]
	}
	return entities.Phases[idx+1]
}

// PrevPhase 最多退回到 Event Announcement
func (s *GameState) PrevPhase() entities.Phase {
	idx := s.game.CurrentPhase.Index()
	if idx <= 1 {
		return entities.Phases[1]
	}
	return entities.Phases[idx-1]
}

func (s *GameState) IsGameOver() bool {
	return s.game.CurrentRound >= s.game.TotalRound &&
		s.game.CurrentPhase == entities.PhaseAchievementTracking
}

// ValidatePhaseTransition 唯一允许修改回合和阶段的入口
func (s *GameState) ValidatePhaseTransition(requested entities.Phase) Transition {
	if !requested.Valid() {
		return Transition{Valid: false, Reason: "Unknown phase: " + string(requested)}
	}

	g := s.game
	fromLast := g.CurrentPhase == entities.PhaseAchievementTracking
	if fromLast && g.CurrentRound == g.TotalRound && requested == entities.PhaseEventAnnouncement {
		return Transition{Valid: false, Reason: lastRoundReason}
	}

	phase := requested
	updates := &GameUpdate{CurrentPhase: &phase}

	// 只有从 Achievement Tracking 进入 Event Announcement 才进入下一回合
	if fromLast && requested == entities.PhaseEventAnnouncement && g.CurrentRound < g.TotalRound {
		round := g.CurrentRound + 1
		updates.CurrentRound = &round
	}

	if requested == entities.PhaseSetup {
		now := s.now()
		status := entities.GameStatusSetup
		updates.SetupStartedAt = &now
		updates.Status = &status
	}

	return Transition{Valid: true, Updates: updates}
}

type NewGameParams struct {
	ID          string
	Name        string
	Description string
	CreatedBy   string
	MinPlayers  int
	MaxPlayers  int
	TotalRound  int
	IsPublic    *bool
	JoinCode    string
	GameOptions map[string]interface{}
}

// InitNewGame 新建游戏记录，未指定的字段用默认值
func InitNewGame(p NewGameParams, now time.Time) *entities.Game {
	g := &entities.Game{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		CreatedBy:    p.CreatedBy,
		Status:       entities.GameStatusSetup,
		CurrentRound: 1,
		TotalRound:   p.TotalRound,
		CurrentPhase: entities.PhaseSetup,
		MinPlayers:   p.MinPlayers,
		MaxPlayers:   p.MaxPlayers,
		IsPublic:     true,
		JoinCode:     p.JoinCode,
		GameOptions:  p.GameOptions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if g.TotalRound <= 0 {
		g.TotalRound = entities.DefaultTotalRound
	}
	if g.MinPlayers <= 0 {
		g.MinPlayers = entities.DefaultMinPlayers
	}
	if g.MaxPlayers <= 0 {
		g.MaxPlayers = entities.DefaultMaxPlayers
	}
	if p.IsPublic != nil {
		g.IsPublic = *p.IsPublic
	}
	if g.GameOptions == nil {
		g.GameOptions = map[string]interface{}{}
	}
	return g
}

// ValidateNewGame 人数和回合数的基本检查
func ValidateNewGame(g *entities.Game) error {
	if g.Name == "" {
		return apperr.Validation("Name is required")
	}
	if g.MinPlayers > g.MaxPlayers {
		return apperr.Validation("min_players (%d) cannot exceed max_players (%d)", g.MinPlayers, g.MaxPlayers)
	}
	if g.TotalRound < 1 {
		return apperr.Validation("total_round must be at least 1")
	}
	return nil
}

// StartSetup 房主从大厅进入城市分配阶段
func StartSetup(g *entities.Game, activePlayers int, now time.Time) (GameUpdate, error) {
	if !g.Status.PreStart() {
		return GameUpdate{}, apperr.Validation("Game cannot enter setup from status %s", g.Status)
	}
	if activePlayers < g.MinPlayers {
		return GameUpdate{}, apperr.Validation("Need at least %d players to start, have %d", g.MinPlayers, activePlayers)
	}
	status := entities.GameStatusSetup
	phase := entities.PhaseSetup
	return GameUpdate{Status: &status, CurrentPhase: &phase, SetupStartedAt: &now}, nil
}

// StartGame 所有在场玩家都分到城市后才能开始
func StartGame(g *entities.Game, active []*entities.Participant, states []*entities.PlayerState, now time.Time) (GameUpdate, error) {
	if g.Status != entities.GameStatusSetup {
		return GameUpdate{}, apperr.Validation("Game can only be started from setup, current status is %s", g.Status)
	}
	byParticipant := make(map[string]*entities.PlayerState, len(states))
	for _, ps := range states {
		byParticipant[ps.ParticipantID] = ps
	}
	for _, p := range active {
		ps, ok := byParticipant[p.ID]
		if !ok || ps.CityID == "" {
			return GameUpdate{}, apperr.Validation("Player %d has no city assigned", p.PlayerNumber)
		}
	}
	status := entities.GameStatusStarted
	phase := entities.PhaseEventAnnouncement
	return GameUpdate{Status: &status, CurrentPhase: &phase, StartedAt: &now}, nil
}

// FinishGame 最后一回合的 Achievement Tracking 之后结算
func FinishGame(g *entities.Game, now time.Time) (GameUpdate, error) {
	if !NewGameState(g).IsGameOver() {
		return GameUpdate{}, apperr.Validation("Game is not over yet: round %d/%d, phase %s", g.CurrentRound, g.TotalRound, g.CurrentPhase)
	}
	status := entities.GameStatusCompleted
	return GameUpdate{Status: &status, EndedAt: &now}, nil
}
