package entities

import "time"

type GameStatus string

const (
	GameStatusLobby      GameStatus = "lobby"       // 等待玩家加入
	GameStatusSetup      GameStatus = "setup"       // 分配城市阶段
	GameStatusStarted    GameStatus = "started"     // 游戏进行中
	GameStatusInProgress GameStatus = "in_progress" // 旧数据里的进行中
	GameStatusCompleted  GameStatus = "completed"
	GameStatusAbandoned  GameStatus = "abandoned"
)

// InProgress 游戏已经开始且未结束
func (s GameStatus) InProgress() bool {
	return s == GameStatusStarted || s == GameStatusInProgress
}

// PreStart 大厅或者setup阶段，离开会释放座位
func (s GameStatus) PreStart() bool {
	return s == GameStatusLobby || s == GameStatusSetup
}

func (s GameStatus) Finished() bool {
	return s == GameStatusCompleted || s == GameStatusAbandoned
}

type Phase string

const (
	PhaseSetup               Phase = "Setup"
	PhaseEventAnnouncement   Phase = "Event Announcement"
	PhaseTax                 Phase = "Tax"
	PhaseDice                Phase = "Dice"
	PhaseAction              Phase = "Action"
	PhaseProgress            Phase = "Progress"
	PhaseEventResolution     Phase = "Event Resolution"
	PhaseAchievementTracking Phase = "Achievement Tracking"
)

// Phases 固定顺序，下标0的Setup只在开局前使用
var Phases = []Phase{
	PhaseSetup,
	PhaseEventAnnouncement,
	PhaseTax,
	PhaseDice,
	PhaseAction,
	PhaseProgress,
	PhaseEventResolution,
	PhaseAchievementTracking,
}

// Index 返回阶段在序列中的位置，不存在返回-1
func (p Phase) Index() int {
	for i, phase := range Phases {
		if phase == p {
			return i
		}
	}
	return -1
}

func (p Phase) Valid() bool {
	return p.Index() >= 0
}

const (
	DefaultTotalRound = 9
	DefaultMinPlayers = 2
	DefaultMaxPlayers = 4
)

type Game struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	CreatedBy      string                 `json:"created_by"`
	Status         GameStatus             `json:"status"`
	CurrentRound   int                    `json:"current_round"`
	TotalRound     int                    `json:"total_round"`
	CurrentPhase   Phase                  `json:"current_phase"`
	MinPlayers     int                    `json:"min_players"`
	MaxPlayers     int                    `json:"max_players"`
	IsPublic       bool                   `json:"is_public"`
	JoinCode       string                 `json:"join_code,omitempty"`
	GameOptions    map[string]interface{} `json:"game_options"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	SetupStartedAt *time.Time             `json:"setup_started_at,omitempty"`
	StartedAt      *time.Time             `json:"started_at,omitempty"`
	EndedAt        *time.Time             `json:"ended_at,omitempty"`
	Version        int64                  `json:"version"`
}

// IsHost 房主以 created_by 为准
func (g *Game) IsHost(userID string) bool {
	return g != nil && userID != "" && g.CreatedBy == userID
}
