package engine

import (
	"fmt"

	"go-khora/catalog"
	"go-khora/entities"
)

// BonusPolicy 决定 track_upgrade 效果的 grantBonus 是否同时发放轨道奖励
type BonusPolicy string

const (
	// BonusLevelRewards 每跨过一级都按轨道表发奖励
	BonusLevelRewards BonusPolicy = "level_rewards"
	// BonusRawLevels 只加等级，不发奖励
	BonusRawLevels BonusPolicy = "raw_levels"
)

func ParseBonusPolicy(s string) (BonusPolicy, error) {
	switch BonusPolicy(s) {
	case "", BonusLevelRewards:
		return BonusLevelRewards, nil
	case BonusRawLevels:
		return BonusRawLevels, nil
	}
	return "", fmt.Errorf("未知的 bonus policy: %q", s)
}

// EffectReport 效果执行结果；Applied 为 false 表示没有任何字段被修改
type EffectReport struct {
	Kind        catalog.EffectKind `json:"kind"`
	Applied     bool               `json:"applied"`
	Description string             `json:"description"`
	Rewards     []AppliedReward    `json:"rewards,omitempty"`
	Warning     string             `json:"warning,omitempty"`
}

// ApplyEffect 对玩家状态执行城市效果。未实现的效果不修改任何字段，通过 Warning 上报
func ApplyEffect(ps *entities.PlayerState, eff catalog.Effect, policy BonusPolicy) EffectReport {
	if eff == nil {
		return EffectReport{Kind: catalog.EffectTodo, Warning: "effect is missing"}
	}
	report := EffectReport{Kind: eff.Kind(), Description: eff.Describe()}

	next := *ps
	switch e := eff.(type) {
	case catalog.TrackUpgradeEffect:
		pos := next.TrackPosition(e.Track)
		if pos == nil {
			report.Warning = fmt.Sprintf("unknown track %q", e.Track)
			return report
		}
		from := *pos
		*pos += e.Levels
		if e.GrantBonus && policy == BonusLevelRewards {
			for level := from + 1; level <= from+e.Levels; level++ {
				if info, ok := catalog.UpgradeInfo(e.Track, level); ok {
					report.Rewards = append(report.Rewards, ApplyReward(&next, info.Reward)...)
				}
			}
		}
	case catalog.ResourceBonusEffect:
		next.Drachmas += e.Drachmas
		next.PhilosophyTokens += e.Philosophy
	case catalog.VictoryPointEffect:
		next.Score += e.Amount
	case catalog.GloryEffect:
		next.GloryTrack += e.Amount
	case catalog.UnimplementedEffect:
		report.Warning = fmt.Sprintf("effect %q is not implemented: %s", e.Kind(), e.Description)
		return report
	default:
		report.Warning = fmt.Sprintf("no handler for effect type %q", eff.Kind())
		return report
	}

	if !next.NonNegative() {
		report.Rewards = nil
		report.Warning = "effect would drive a resource negative"
		return report
	}
	*ps = next
	report.Applied = true
	return report
}
