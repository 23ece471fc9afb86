package engine

import (
	"sort"

	"go-khora/catalog"
	"go-khora/entities"
)

type AppliedReward struct {
	Type   catalog.RewardType `json:"type"`
	Amount int                `json:"amount"`
}

// ApplyReward 把轨道奖励加到玩家身上，付费升级和城市效果共用
func ApplyReward(ps *entities.PlayerState, reward catalog.Reward) []AppliedReward {
	keys := make([]string, 0, len(reward))
	for k := range reward {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	applied := make([]AppliedReward, 0, len(keys))
	for _, k := range keys {
		typ := catalog.RewardType(k)
		amount := reward[typ]
		if amount == 0 {
			continue
		}
		switch typ {
		case catalog.RewardCitizen:
			ps.CitizenTrack += amount
		case catalog.RewardVictoryPoint:
			ps.Score += amount
		case catalog.RewardTax:
			ps.TaxTrack += amount
		case catalog.RewardGlory:
			ps.GloryTrack += amount
		case catalog.RewardDice:
			ps.BonusDice += amount
		default:
			continue
		}
		applied = append(applied, AppliedReward{Type: typ, Amount: amount})
	}
	return applied
}
