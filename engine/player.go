package engine

import (
	"time"

	"go-khora/apperr"
	"go-khora/catalog"
	"go-khora/entities"
)

// TokenPhases 可以使用哲学标记的阶段
var TokenPhases = []entities.Phase{entities.PhaseDice, entities.PhaseAction, entities.PhaseProgress}

func tokenPhaseAllowed(phase entities.Phase) bool {
	for _, p := range TokenPhases {
		if p == phase {
			return true
		}
	}
	return false
}

type UpgradeResult struct {
	Track     entities.Track  `json:"track"`
	Level     int             `json:"level"`
	Cost      int             `json:"cost"`
	UsedToken bool            `json:"used_token"`
	Rewards   []AppliedReward `json:"rewards"`
}

// UpgradeTrack 付费升级一条轨道。所有检查都在修改之前完成，失败时 ps 不变
func UpgradeTrack(ps *entities.PlayerState, track entities.Track, usePhilosophyToken bool, now time.Time) (UpgradeResult, error) {
	if !track.Upgradable() {
		return UpgradeResult{}, apperr.Validation("Invalid track: %s", track)
	}
	pos := ps.TrackPosition(track)
	target := *pos + 1
	info, ok := catalog.UpgradeInfo(track, target)
	if !ok {
		return UpgradeResult{}, apperr.Validation("No further upgrades available for %s track", track)
	}

	// 哲学标记和金币二选一
	if usePhilosophyToken {
		if ps.PhilosophyTokens < 1 {
			return UpgradeResult{}, apperr.Insufficient("No philosophy tokens left")
		}
	} else if ps.Drachmas < info.Cost {
		return UpgradeResult{}, apperr.Insufficient("Insufficient drachmas: need %d, have %d", info.Cost, ps.Drachmas)
	}

	result := UpgradeResult{Track: track, Level: target, UsedToken: usePhilosophyToken}
	if usePhilosophyToken {
		ps.PhilosophyTokens--
	} else {
		ps.Drachmas -= info.Cost
		result.Cost = info.Cost
	}
	*pos = target
	result.Rewards = ApplyReward(ps, info.Reward)
	stamp(ps, entities.ActionUpgradeTrack, now)
	return result, nil
}

// UsePhilosophyToken 只能在 Dice / Action / Progress 阶段使用
func UsePhilosophyToken(ps *entities.PlayerState, phase entities.Phase, now time.Time) error {
	if !tokenPhaseAllowed(phase) {
		return apperr.Validation("Philosophy tokens can only be used during Dice, Action or Progress phase (current: %s)", phase)
	}
	if ps.PhilosophyTokens <= 0 {
		return apperr.Insufficient("No philosophy tokens left")
	}
	ps.PhilosophyTokens--
	stamp(ps, entities.ActionUsePhilosophyToken, now)
	return nil
}

type TaxEntry struct {
	ID          string `json:"id"`
	OldDrachmas int    `json:"oldDrachmas"`
	Tax         int    `json:"tax"`
	NewDrachmas int    `json:"newDrachmas"`
	Error       string `json:"error,omitempty"`
}

// CollectTax 按税收轨道位置发钱
func CollectTax(ps *entities.PlayerState, now time.Time) TaxEntry {
	entry := TaxEntry{ID: ps.ID, OldDrachmas: ps.Drachmas, Tax: ps.TaxTrack}
	if ps.TaxTrack > 0 {
		ps.Drachmas += ps.TaxTrack
	}
	entry.NewDrachmas = ps.Drachmas
	ps.UpdatedAt = now
	return entry
}

type DevelopmentResult struct {
	CityID string       `json:"city_id"`
	Level  int          `json:"level"`
	Cost   int          `json:"cost"`
	Effect EffectReport `json:"effect"`
}

// MissingKnowledge 计算知识标记缺口，any_color 可以补任意颜色
func MissingKnowledge(ps *entities.PlayerState, reqs []catalog.KnowledgeRequirement) int {
	shortfall := 0
	for _, r := range reqs {
		if have := ps.Knowledge(r.Color); have < r.Amount {
			shortfall += r.Amount - have
		}
	}
	if shortfall <= ps.AnyColor {
		return 0
	}
	return shortfall - ps.AnyColor
}

// PurchaseDevelopment 购买城市的下一级发展，知识标记只是门槛不消耗
func PurchaseDevelopment(ps *entities.PlayerState, policy BonusPolicy, now time.Time) (DevelopmentResult, error) {
	if ps.CityID == "" {
		return DevelopmentResult{}, apperr.Validation("No city assigned")
	}
	city, ok := catalog.CityByID(ps.CityID)
	if !ok {
		return DevelopmentResult{}, apperr.NotFound("City %s not found", ps.CityID)
	}
	level := ps.CityDevelopmentLevel + 1
	dev, ok := city.Development(level)
	if !ok {
		return DevelopmentResult{}, apperr.Validation("No further developments for %s", city.Name)
	}
	if missing := MissingKnowledge(ps, dev.Requirements.KnowledgeTokens); missing > 0 {
		return DevelopmentResult{}, apperr.Insufficient("Missing %d knowledge tokens for %s development %d", missing, city.Name, level)
	}
	if ps.Drachmas < dev.Requirements.Drachmas {
		return DevelopmentResult{}, apperr.Insufficient("Insufficient drachmas: need %d, have %d", dev.Requirements.Drachmas, ps.Drachmas)
	}

	ps.Drachmas -= dev.Requirements.Drachmas
	ps.CityDevelopmentLevel = level
	report := ApplyEffect(ps, dev.Effect, policy)
	stamp(ps, entities.ActionPurchaseDevelopment, now)
	return DevelopmentResult{CityID: city.ID, Level: level, Cost: dev.Requirements.Drachmas, Effect: report}, nil
}

func stamp(ps *entities.PlayerState, action string, now time.Time) {
	ps.LastAction = &entities.LastAction{Type: action, Timestamp: now}
	ps.UpdatedAt = now
}
