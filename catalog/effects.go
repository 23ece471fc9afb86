package catalog

import (
	"fmt"

	"go-khora/entities"

	"github.com/mitchellh/mapstructure"
)

type EffectKind string

const (
	EffectTrackUpgrade  EffectKind = "track_upgrade"
	EffectResourceBonus EffectKind = "resource_bonus"
	EffectVictoryPoint  EffectKind = "victory_point"
	EffectGlory         EffectKind = "glory"
	EffectTodo          EffectKind = "todo"
)

// Effect 城市效果，只有下面几种实现
type Effect interface {
	Kind() EffectKind
	Describe() string
	effect()
}

type TrackUpgradeEffect struct {
	Track       entities.Track `json:"track"`
	Levels      int            `json:"level"`
	GrantBonus  bool           `json:"grantBonus"`
	Description string         `json:"description"`
}

type ResourceBonusEffect struct {
	Drachmas    int    `json:"drachmas"`
	Philosophy  int    `json:"philosophy"`
	Description string `json:"description"`
}

type VictoryPointEffect struct {
	Amount      int    `json:"amount"`
	Description string `json:"description"`
}

type GloryEffect struct {
	Amount      int    `json:"amount"`
	Description string `json:"description"`
}

// UnimplementedEffect 还没实现的能力，只有描述
type UnimplementedEffect struct {
	Tag         string `json:"type"`
	Description string `json:"description"`
}

func (TrackUpgradeEffect) Kind() EffectKind  { return EffectTrackUpgrade }
func (ResourceBonusEffect) Kind() EffectKind { return EffectResourceBonus }
func (VictoryPointEffect) Kind() EffectKind  { return EffectVictoryPoint }
func (GloryEffect) Kind() EffectKind         { return EffectGlory }
func (e UnimplementedEffect) Kind() EffectKind {
	if e.Tag == "" {
		return EffectTodo
	}
	return EffectKind(e.Tag)
}

func (e TrackUpgradeEffect) Describe() string  { return e.Description }
func (e ResourceBonusEffect) Describe() string { return e.Description }
func (e VictoryPointEffect) Describe() string  { return e.Description }
func (e GloryEffect) Describe() string         { return e.Description }
func (e UnimplementedEffect) Describe() string { return e.Description }

func (TrackUpgradeEffect) effect()  {}
func (ResourceBonusEffect) effect() {}
func (VictoryPointEffect) effect()  {}
func (GloryEffect) effect()         {}
func (UnimplementedEffect) effect() {}

// rawEffect yaml 里的原始结构，params 是自由字段
type rawEffect struct {
	Type        string                 `yaml:"type"`
	Params      map[string]interface{} `yaml:"params"`
	Description string                 `yaml:"description"`
}

type trackUpgradeParams struct {
	Track      string `mapstructure:"track"`
	Level      int    `mapstructure:"level"`
	GrantBonus bool   `mapstructure:"grant_bonus"`
}

type resourceBonusParams struct {
	Drachmas   int `mapstructure:"drachmas"`
	Philosophy int `mapstructure:"philosophy"`
}

type amountParams struct {
	Amount int `mapstructure:"amount"`
}

func decodeParams(params map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(params)
}

// toEffect 把 yaml 的原始效果转换成具体类型
func (r rawEffect) toEffect() (Effect, error) {
	switch EffectKind(r.Type) {
	case EffectTrackUpgrade:
		var p trackUpgradeParams
		if err := decodeParams(r.Params, &p); err != nil {
			return nil, fmt.Errorf("解析 track_upgrade 参数失败: %w", err)
		}
		track := entities.Track(p.Track)
		if !track.Valid() {
			return nil, fmt.Errorf("未知轨道: %q", p.Track)
		}
		if p.Level <= 0 {
			return nil, fmt.Errorf("轨道 %s 的等级必须大于0", p.Track)
		}
		return TrackUpgradeEffect{Track: track, Levels: p.Level, GrantBonus: p.GrantBonus, Description: r.Description}, nil
	case EffectResourceBonus:
		var p resourceBonusParams
		if err := decodeParams(r.Params, &p); err != nil {
			return nil, fmt.Errorf("解析 resource_bonus 参数失败: %w", err)
		}
		return ResourceBonusEffect{Drachmas: p.Drachmas, Philosophy: p.Philosophy, Description: r.Description}, nil
	case EffectVictoryPoint:
		var p amountParams
		if err := decodeParams(r.Params, &p); err != nil {
			return nil, fmt.Errorf("解析 victory_point 参数失败: %w", err)
		}
		return VictoryPointEffect{Amount: p.Amount, Description: r.Description}, nil
	case EffectGlory:
		var p amountParams
		if err := decodeParams(r.Params, &p); err != nil {
			return nil, fmt.Errorf("解析 glory 参数失败: %w", err)
		}
		return GloryEffect{Amount: p.Amount, Description: r.Description}, nil
	default:
		return UnimplementedEffect{Tag: r.Type, Description: r.Description}, nil
	}
}
