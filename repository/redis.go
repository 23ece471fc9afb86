// redis.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go-khora/entities"

	"github.com/go-redis/redis/v8"
)

// key 约定：
//
//	game:{id}                         游戏 json
//	games                             所有游戏 id，按创建时间排序的 zset
//	game:{id}:participants            参与者 id 集合
//	game:{id}:seats                   hash，user:{uid} / number:{n} -> participant id
//	game:{id}:player_states           玩家状态 id 集合
//	participant:{id}                  参与者 json
//	participant:{id}:player_state     玩家状态 id
//	player_state:{id}                 玩家状态 json
func gameKey(id string) string { return fmt.Sprintf("game:%s", id) }
func gameParticipantsKey(id string) string { return fmt.Sprintf("game:%s:participants", id) }
func gameSeatsKey(id string) string { return fmt.Sprintf("game:%s:seats", id) }
func gamePlayerStatesKey(id string) string { return fmt.Sprintf("game:%s:player_states", id) }
func participantKey(id string) string { return fmt.Sprintf("participant:%s", id) }
func participantStateKey(id string) string { return fmt.Sprintf("participant:%s:player_state", id) }
func playerStateKey(id string) string { return fmt.Sprintf("player_state:%s", id) }
func userSeatField(userID string) string { return "user:" + userID }
func numberSeatField(number int) string { return "number:" + strconv.Itoa(number) }

const gamesIndexKey = "games"

// stringGetter *redis.Client 和 *redis.Tx 都满足
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type RedisOptions struct {
	Addr       string
	Password   string
	DB         int
	MaxRetries int
}

// RedisStore 每条记录一个 key，修改时 WATCH 该 key，事务失败即版本冲突
type RedisStore struct {
	rdb        *redis.Client
	maxRetries int
}

func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}
	return &RedisStore{rdb: rdb, maxRetries: opts.MaxRetries}, nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

// Client 测试里清理数据用
func (s *RedisStore) Client() *redis.Client { return s.rdb }

func (s *RedisStore) getJSON(ctx context.Context, getter stringGetter, what, id, key string) ([]byte, error) {
	data, err := getter.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(what, id)
	}
	if err != nil {
		return nil, fmt.Errorf("读取%s[%s]失败: %w", what, id, err)
	}
	return data, nil
}

// watchUpdate 乐观锁更新单个 key；mutate 返回新的 json
func (s *RedisStore) watchUpdate(ctx context.Context, what, id, key string, mutate func(data []byte) ([]byte, error)) error {
	return withRetry(ctx, s.maxRetries, what, id, func() (bool, error) {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := s.getJSON(ctx, tx, what, id, key)
			if err != nil {
				return err
			}
			next, err := mutate(data)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next, 0)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			return false, nil
		}
		return err == nil, err
	})
}

func (s *RedisStore) CreateGame(ctx context.Context, g *entities.Game) error {
	data, err := encode(g)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, gameKey(g.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("写入游戏[%s]失败: %w", g.ID, err)
	}
	if !ok {
		return fmt.Errorf("game: %w", ErrDuplicate)
	}
	if err := s.rdb.ZAdd(ctx, gamesIndexKey, &redis.Z{Score: float64(toMillis(g.CreatedAt)), Member: g.ID}).Err(); err != nil {
		return fmt.Errorf("写入游戏索引失败: %w", err)
	}
	return nil
}

func (s *RedisStore) GetGame(ctx context.Context, id string) (*entities.Game, error) {
	data, err := s.getJSON(ctx, s.rdb, "game", id, gameKey(id))
	if err != nil {
		return nil, err
	}
	return decode[entities.Game](data)
}

func (s *RedisStore) ListGames(ctx context.Context, filter GameFilter) ([]*entities.Game, error) {
	ids, err := s.rdb.ZRevRange(ctx, gamesIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("读取游戏列表失败: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = gameKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("读取游戏列表失败: %w", err)
	}
	var games []*entities.Game
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		g, err := decode[entities.Game]([]byte(str))
		if err != nil {
			return nil, err
		}
		if filter.match(g) {
			games = append(games, g)
		}
	}
	sortGames(games)
	if filter.Limit > 0 && len(games) > filter.Limit {
		games = games[:filter.Limit]
	}
	return games, nil
}

func (s *RedisStore) UpdateGame(ctx context.Context, id string, fn func(*entities.Game) error) (*entities.Game, error) {
	var out *entities.Game
	err := s.watchUpdate(ctx, "game", id, gameKey(id), func(data []byte) ([]byte, error) {
		g, err := decode[entities.Game](data)
		if err != nil {
			return nil, err
		}
		if err := fn(g); err != nil {
			return nil, err
		}
		g.ID = id
		g.Version++
		out = g
		return encode(g)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertParticipant 座位 hash 上的 HSETNX 不够，要同时保证 user 和 number 都没被占用
func (s *RedisStore) InsertParticipant(ctx context.Context, p *entities.Participant) error {
	data, err := encode(p)
	if err != nil {
		return err
	}
	seats := gameSeatsKey(p.GameID)
	return withRetry(ctx, s.maxRetries, "participant", p.ID, func() (bool, error) {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			taken, err := tx.HMGet(ctx, seats, userSeatField(p.UserID), numberSeatField(p.PlayerNumber)).Result()
			if err != nil {
				return fmt.Errorf("读取座位失败: %w", err)
			}
			for _, v := range taken {
				if v != nil {
					return fmt.Errorf("participant: %w", ErrDuplicate)
				}
			}
			exists, err := tx.Exists(ctx, participantKey(p.ID)).Result()
			if err != nil {
				return fmt.Errorf("读取参与者失败: %w", err)
			}
			if exists > 0 {
				return fmt.Errorf("participant: %w", ErrDuplicate)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, participantKey(p.ID), data, 0)
				pipe.HSet(ctx, seats, userSeatField(p.UserID), p.ID, numberSeatField(p.PlayerNumber), p.ID)
				pipe.SAdd(ctx, gameParticipantsKey(p.GameID), p.ID)
				return nil
			})
			return err
		}, seats, participantKey(p.ID))
		if errors.Is(err, redis.TxFailedErr) {
			return false, nil
		}
		return err == nil, err
	})
}

func (s *RedisStore) GetParticipant(ctx context.Context, id string) (*entities.Participant, error) {
	data, err := s.getJSON(ctx, s.rdb, "participant", id, participantKey(id))
	if err != nil {
		return nil, err
	}
	return decode[entities.Participant](data)
}

func (s *RedisStore) loadMembers(ctx context.Context, setKey string, keyOf func(string) string) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("读取集合[%s]失败: %w", setKey, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyOf(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("批量读取失败: %w", err)
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out, nil
}

func (s *RedisStore) ListParticipants(ctx context.Context, gameID string) ([]*entities.Participant, error) {
	values, err := s.loadMembers(ctx, gameParticipantsKey(gameID), participantKey)
	if err != nil {
		return nil, err
	}
	out := make([]*entities.Participant, 0, len(values))
	for _, v := range values {
		p, err := decode[entities.Participant]([]byte(v))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sortParticipants(out)
	return out, nil
}

func (s *RedisStore) UpdateParticipant(ctx context.Context, id string, fn func(*entities.Participant) error) (*entities.Participant, error) {
	var out *entities.Participant
	err := s.watchUpdate(ctx, "participant", id, participantKey(id), func(data []byte) ([]byte, error) {
		p, err := decode[entities.Participant](data)
		if err != nil {
			return nil, err
		}
		gameID, userID, number := p.GameID, p.UserID, p.PlayerNumber
		if err := fn(p); err != nil {
			return nil, err
		}
		p.ID, p.GameID, p.UserID, p.PlayerNumber = id, gameID, userID, number
		p.Version++
		out = p
		return encode(p)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePlayerState 索引和记录在同一个事务里写入，读到索引时记录一定存在
func (s *RedisStore) CreatePlayerState(ctx context.Context, ps *entities.PlayerState) error {
	data, err := encode(ps)
	if err != nil {
		return err
	}
	index, key := participantStateKey(ps.ParticipantID), playerStateKey(ps.ID)
	return withRetry(ctx, s.maxRetries, "player state", ps.ID, func() (bool, error) {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			exists, err := tx.Exists(ctx, index, key).Result()
			if err != nil {
				return fmt.Errorf("读取玩家状态索引失败: %w", err)
			}
			if exists > 0 {
				return fmt.Errorf("player state: %w", ErrDuplicate)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				pipe.Set(ctx, index, ps.ID, 0)
				pipe.SAdd(ctx, gamePlayerStatesKey(ps.GameID), ps.ID)
				return nil
			})
			return err
		}, index, key)
		if errors.Is(err, redis.TxFailedErr) {
			return false, nil
		}
		return err == nil, err
	})
}

func (s *RedisStore) GetPlayerState(ctx context.Context, id string) (*entities.PlayerState, error) {
	data, err := s.getJSON(ctx, s.rdb, "player state", id, playerStateKey(id))
	if err != nil {
		return nil, err
	}
	return decode[entities.PlayerState](data)
}

func (s *RedisStore) GetPlayerStateByParticipant(ctx context.Context, participantID string) (*entities.PlayerState, error) {
	id, err := s.rdb.Get(ctx, participantStateKey(participantID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, notFound("player state for participant", participantID)
	}
	if err != nil {
		return nil, fmt.Errorf("读取玩家状态索引失败: %w", err)
	}
	return s.GetPlayerState(ctx, id)
}

func (s *RedisStore) ListPlayerStates(ctx context.Context, gameID string) ([]*entities.PlayerState, error) {
	values, err := s.loadMembers(ctx, gamePlayerStatesKey(gameID), playerStateKey)
	if err != nil {
		return nil, err
	}
	out := make([]*entities.PlayerState, 0, len(values))
	for _, v := range values {
		ps, err := decode[entities.PlayerState]([]byte(v))
		if err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	sortPlayerStates(out)
	return out, nil
}

func (s *RedisStore) UpdatePlayerState(ctx context.Context, id string, fn func(*entities.PlayerState) error) (*entities.PlayerState, error) {
	var out *entities.PlayerState
	err := s.watchUpdate(ctx, "player state", id, playerStateKey(id), func(data []byte) ([]byte, error) {
		ps, err := decode[entities.PlayerState](data)
		if err != nil {
			return nil, err
		}
		gameID, owner := ps.GameID, ps.ParticipantID
		if err := fn(ps); err != nil {
			return nil, err
		}
		ps.ID, ps.GameID, ps.ParticipantID = id, gameID, owner
		ps.Version++
		out = ps
		return encode(ps)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var _ Store = (*RedisStore)(nil)
