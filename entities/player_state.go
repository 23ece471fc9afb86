package entities

import "time"

type Track string

const (
	TrackGlory    Track = "glory"
	TrackCitizen  Track = "citizen"
	TrackTax      Track = "tax"
	TrackCulture  Track = "culture"
	TrackMilitary Track = "military"
	TrackEconomy  Track = "economy"
	TrackArmy     Track = "army"
)

// UpgradeTracks 可以花钱升级的三条轨道
var UpgradeTracks = []Track{TrackEconomy, TrackCulture, TrackMilitary}

// Valid 是否为玩家状态上存在的轨道
func (t Track) Valid() bool {
	var ps PlayerState
	return ps.TrackPosition(t) != nil
}

func (t Track) Upgradable() bool {
	for _, u := range UpgradeTracks {
		if u == t {
			return true
		}
	}
	return false
}

const (
	ActionUsePhilosophyToken  = "use_philosophy_token"
	ActionUpgradeTrack        = "upgrade_track"
	ActionPurchaseDevelopment = "purchase_development"
	ActionCollectTax          = "collect_tax"
)

// LastAction 只给前端回显用
type LastAction struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

type KnowledgeColor string

const (
	KnowledgeRed   KnowledgeColor = "red"
	KnowledgeBlue  KnowledgeColor = "blue"
	KnowledgeGreen KnowledgeColor = "green"
)

type PlayerState struct {
	ID            string `json:"id"`
	GameID        string `json:"game_id"`
	ParticipantID string `json:"participant_id"`
	Score         int    `json:"score"`

	GloryTrack    int `json:"glory_track_position"`
	CitizenTrack  int `json:"citizen_track_position"`
	TaxTrack      int `json:"tax_track_position"`
	CultureTrack  int `json:"culture_track_position"`
	MilitaryTrack int `json:"military_track_position"`
	EconomyTrack  int `json:"economy_track_position"`
	ArmyTrack     int `json:"army_track_position"`

	PhilosophyTokens int `json:"philosophy_token_num"`
	Drachmas         int `json:"drachmas"`
	BonusDice        int `json:"bonus_dice"`

	RedMinor   int `json:"red_minor_counter"`
	RedMajor   int `json:"red_major_counter"`
	BlueMinor  int `json:"blue_minor_counter"`
	BlueMajor  int `json:"blue_major_counter"`
	GreenMinor int `json:"green_minor_counter"`
	GreenMajor int `json:"green_major_counter"`
	AnyColor   int `json:"any_color_counter"`

	CityID               string      `json:"city_id,omitempty"`
	CityDevelopmentLevel int         `json:"city_development_level"`
	LastAction           *LastAction `json:"last_action,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// TrackPosition 返回轨道字段的指针，未知轨道返回nil
func (ps *PlayerState) TrackPosition(t Track) *int {
	switch t {
	case TrackGlory:
		return &ps.GloryTrack
	case TrackCitizen:
		return &ps.CitizenTrack
	case TrackTax:
		return &ps.TaxTrack
	case TrackCulture:
		return &ps.CultureTrack
	case TrackMilitary:
		return &ps.MilitaryTrack
	case TrackEconomy:
		return &ps.EconomyTrack
	case TrackArmy:
		return &ps.ArmyTrack
	}
	return nil
}

// Knowledge 某颜色的知识标记总数（minor + major）
func (ps *PlayerState) Knowledge(color KnowledgeColor) int {
	switch color {
	case KnowledgeRed:
		return ps.RedMinor + ps.RedMajor
	case KnowledgeBlue:
		return ps.BlueMinor + ps.BlueMajor
	case KnowledgeGreen:
		return ps.GreenMinor + ps.GreenMajor
	}
	return 0
}

// NonNegative 轨道位置和所有可消耗资源都不能为负
func (ps *PlayerState) NonNegative() bool {
	return ps.GloryTrack >= 0 && ps.CitizenTrack >= 0 && ps.TaxTrack >= 0 && ps.CultureTrack >= 0 &&
		ps.MilitaryTrack >= 0 && ps.EconomyTrack >= 0 && ps.ArmyTrack >= 0 &&
		ps.Drachmas >= 0 && ps.PhilosophyTokens >= 0 && ps.BonusDice >= 0 &&
		ps.RedMinor >= 0 && ps.RedMajor >= 0 && ps.BlueMinor >= 0 && ps.BlueMajor >= 0 &&
		ps.GreenMinor >= 0 && ps.GreenMajor >= 0 && ps.AnyColor >= 0
}

// NewPlayerState 城市分配时为参与者建立的初始状态，三条升级轨道从1级起步
func NewPlayerState(id, gameID, participantID string, drachmas, philosophy int, now time.Time) *PlayerState {
	return &PlayerState{
		ID:               id,
		GameID:           gameID,
		ParticipantID:    participantID,
		CultureTrack:     1,
		MilitaryTrack:    1,
		EconomyTrack:     1,
		Drachmas:         drachmas,
		PhilosophyTokens: philosophy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
