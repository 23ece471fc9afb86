package catalog

import "go-khora/entities"

type RewardType string

const (
	RewardCitizen      RewardType = "citizen"
	RewardVictoryPoint RewardType = "victory_point"
	RewardTax          RewardType = "tax"
	RewardGlory        RewardType = "glory"
	RewardDice         RewardType = "dice"
)

// Reward 稀疏的奖励表，key 为奖励类型
type Reward map[RewardType]int

type TrackUpgrade struct {
	Cost   int    `json:"cost"`
	Reward Reward `json:"reward"`
}

// MaxTrackLevel 升级轨道的最高等级
const MaxTrackLevel = 7

// trackTable 下标即等级，0级不存在，1级是起始等级不能购买
var trackTable = map[entities.Track][MaxTrackLevel + 1]*TrackUpgrade{
	entities.TrackEconomy: {
		nil,
		nil,
		{Cost: 2, Reward: Reward{RewardCitizen: 3}},
		{Cost: 2, Reward: Reward{RewardCitizen: 3}},
		{Cost: 3, Reward: Reward{RewardVictoryPoint: 5}},
		{Cost: 3, Reward: Reward{}},
		{Cost: 4, Reward: Reward{}},
		{Cost: 4, Reward: Reward{RewardVictoryPoint: 10}},
	},
	entities.TrackCulture: {
		nil,
		nil,
		{Cost: 1, Reward: Reward{}},
		{Cost: 4, Reward: Reward{RewardTax: 1}},
		{Cost: 6, Reward: Reward{RewardDice: 1}},
		{Cost: 6, Reward: Reward{RewardTax: 1}},
		{Cost: 7, Reward: Reward{RewardTax: 1}},
		{Cost: 7, Reward: Reward{RewardTax: 2}},
	},
	entities.TrackMilitary: {
		nil,
		nil,
		{Cost: 2, Reward: Reward{RewardGlory: 1}},
		{Cost: 3, Reward: Reward{}},
		{Cost: 4, Reward: Reward{RewardGlory: 1}},
		{Cost: 5, Reward: Reward{}},
		{Cost: 7, Reward: Reward{RewardGlory: 1}},
		{Cost: 9, Reward: Reward{RewardGlory: 2}},
	},
}

// UpgradeInfo 查询升到 targetLevel 的花费和奖励，不可购买的等级返回 false
func UpgradeInfo(track entities.Track, targetLevel int) (TrackUpgrade, bool) {
	levels, ok := trackTable[track]
	if !ok || targetLevel < 0 || targetLevel > MaxTrackLevel {
		return TrackUpgrade{}, false
	}
	entry := levels[targetLevel]
	if entry == nil {
		return TrackUpgrade{}, false
	}
	reward := make(Reward, len(entry.Reward))
	for k, v := range entry.Reward {
		reward[k] = v
	}
	return TrackUpgrade{Cost: entry.Cost, Reward: reward}, true
}
