// Package service 把 engine 的纯规则和 repository 的持久化组合成对外的游戏操作
package service

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"time"

	"go-khora/apperr"
	"go-khora/engine"
	"go-khora/repository"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
)

const joinRetries = 5

type Service struct {
	store    repository.Store
	log      *zap.Logger
	notifier Notifier

	policy             engine.BonusPolicy
	startingDrachmas   int
	startingPhilosophy int

	now   func() time.Time
	newID func() string

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithBonusPolicy(p engine.BonusPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithStartingResources 新建玩家状态时的初始金币和哲学标记
func WithStartingResources(drachmas, philosophy int) Option {
	return func(s *Service) {
		s.startingDrachmas = drachmas
		s.startingPhilosophy = philosophy
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithRandSeed 固定城市洗牌的种子
func WithRandSeed(seed uint64) Option {
	return func(s *Service) { s.rng = rand.New(rand.NewSource(seed)) }
}

func New(store repository.Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:    store,
		log:      logger,
		notifier: NopNotifier{},
		policy:   engine.BonusLevelRewards,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		rng:      rand.New(rand.NewSource(uint64(time.Now().UnixNano()))),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) shuffle(n int, swap func(i, j int)) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	s.rng.Shuffle(n, swap)
}

func (s *Service) notify(ctx context.Context, typ EventType, gameID string, data interface{}) {
	s.notifier.Notify(ctx, Event{Type: typ, GameID: gameID, Data: data})
}

// GameOptions 创建游戏时可以覆盖的全局配置，存放在 game_options 里
type GameOptions struct {
	StartingDrachmas   *int   `json:"starting_drachmas"`
	StartingPhilosophy *int   `json:"starting_philosophy_tokens"`
	BonusPolicy        string `json:"bonus_policy"`
}

// 自定义 HookFunc，把字符串转换成 int
func stringToIntHookFunc() mapstructure.DecodeHookFunc {
	return func(from reflect.Kind, to reflect.Kind, data interface{}) (interface{}, error) {
		if from == reflect.String && to == reflect.Int {
			return strconv.Atoi(data.(string))
		}
		return data, nil
	}
}

func DecodeGameOptions(raw map[string]interface{}) (GameOptions, error) {
	var opts GameOptions
	if len(raw) == 0 {
		return opts, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: stringToIntHookFunc(),
		Result:     &opts,
		TagName:    "json",
	})
	if err != nil {
		return opts, fmt.Errorf("创建解码器失败: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return opts, apperr.Validation("Invalid game_options: %v", err)
	}
	if opts.StartingDrachmas != nil && *opts.StartingDrachmas < 0 {
		return opts, apperr.Validation("starting_drachmas cannot be negative")
	}
	if opts.StartingPhilosophy != nil && *opts.StartingPhilosophy < 0 {
		return opts, apperr.Validation("starting_philosophy_tokens cannot be negative")
	}
	if opts.BonusPolicy != "" {
		if _, err := engine.ParseBonusPolicy(opts.BonusPolicy); err != nil {
			return opts, apperr.Validation("Invalid bonus_policy: %s", opts.BonusPolicy)
		}
	}
	return opts, nil
}

// gameRules 游戏自己的配置优先，其次是服务的默认值
type gameRules struct {
	drachmas   int
	philosophy int
	policy     engine.BonusPolicy
}

func (s *Service) rulesFor(raw map[string]interface{}) gameRules {
	rules := gameRules{drachmas: s.startingDrachmas, philosophy: s.startingPhilosophy, policy: s.policy}
	opts, err := DecodeGameOptions(raw)
	if err != nil {
		// 创建时已经校验过，这里只可能是旧数据
		s.log.Warn("game_options 解析失败，使用默认配置", zap.Error(err))
		return rules
	}
	if opts.StartingDrachmas != nil {
		rules.drachmas = *opts.StartingDrachmas
	}
	if opts.StartingPhilosophy != nil {
		rules.philosophy = *opts.StartingPhilosophy
	}
	if opts.BonusPolicy != "" {
		rules.policy, _ = engine.ParseBonusPolicy(opts.BonusPolicy)
	}
	return rules
}
