package catalog

import (
	_ "embed"
	"fmt"

	"go-khora/entities"

	"gopkg.in/yaml.v3"
)

//go:embed cities.yaml
var citiesYAML []byte

type KnowledgeRequirement struct {
	Color  entities.KnowledgeColor `json:"color" yaml:"color"`
	Amount int                     `json:"amount" yaml:"amount"`
}

type Requirements struct {
	Drachmas        int                    `json:"drachmas" yaml:"drachmas"`
	KnowledgeTokens []KnowledgeRequirement `json:"knowledgeTokens" yaml:"knowledgeTokens"`
}

type Development struct {
	Level        int          `json:"level"`
	Requirements Requirements `json:"requirements"`
	Effect       Effect       `json:"effect"`
}

type City struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	StartingEffect Effect        `json:"startingEffect"`
	Developments   []Development `json:"developments"`
}

// Development 按等级取城市发展，不存在返回 false
func (c City) Development(level int) (Development, bool) {
	for _, d := range c.Developments {
		if d.Level == level {
			return d, true
		}
	}
	return Development{}, false
}

type rawDevelopment struct {
	Level        int          `yaml:"level"`
	Requirements Requirements `yaml:"requirements"`
	Effect       rawEffect    `yaml:"effect"`
}

type rawCity struct {
	ID             string           `yaml:"id"`
	Name           string           `yaml:"name"`
	StartingEffect rawEffect        `yaml:"startingEffect"`
	Developments   []rawDevelopment `yaml:"developments"`
}

// LoadCities 解析城市 yaml
func LoadCities(data []byte) ([]City, error) {
	var raws []rawCity
	if err := yaml.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("解析城市数据失败: %w", err)
	}

	seen := make(map[string]bool, len(raws))
	cities := make([]City, 0, len(raws))
	for _, raw := range raws {
		if raw.ID == "" {
			return nil, fmt.Errorf("城市缺少 id: %q", raw.Name)
		}
		if seen[raw.ID] {
			return nil, fmt.Errorf("城市 id 重复: %s", raw.ID)
		}
		seen[raw.ID] = true

		starting, err := raw.StartingEffect.toEffect()
		if err != nil {
			return nil, fmt.Errorf("城市[%s]起始效果: %w", raw.ID, err)
		}
		city := City{ID: raw.ID, Name: raw.Name, StartingEffect: starting}
		for i, rd := range raw.Developments {
			if rd.Level != i+1 {
				return nil, fmt.Errorf("城市[%s]发展等级不连续: %d", raw.ID, rd.Level)
			}
			eff, err := rd.Effect.toEffect()
			if err != nil {
				return nil, fmt.Errorf("城市[%s]发展%d: %w", raw.ID, rd.Level, err)
			}
			city.Developments = append(city.Developments, Development{
				Level:        rd.Level,
				Requirements: rd.Requirements,
				Effect:       eff,
			})
		}
		cities = append(cities, city)
	}
	return cities, nil
}

var cities []City

func init() {
	var err error
	cities, err = LoadCities(citiesYAML)
	if err != nil {
		panic(err)
	}
}

// Cities 返回城市列表的副本，调用方可以随意打乱
func Cities() []City {
	out := make([]City, len(cities))
	copy(out, cities)
	return out
}

func CityByID(id string) (City, bool) {
	for _, c := range cities {
		if c.ID == id {
			return c, true
		}
	}
	return City{}, false
}
