package repository

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"go-khora/entities"
)

// MemoryStore 进程内存储，开发和测试用。记录以 json 保存，读出的都是副本
type MemoryStore struct {
	mu           sync.RWMutex
	games        map[string][]byte
	participants map[string][]byte
	playerStates map[string][]byte

	// 唯一约束
	seatKeys     map[string]string // game_id/user_id 和 game_id#number -> participant id
	stateByOwner map[string]string // participant id -> player state id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:        make(map[string][]byte),
		participants: make(map[string][]byte),
		playerStates: make(map[string][]byte),
		seatKeys:     make(map[string]string),
		stateByOwner: make(map[string]string),
	}
}

func userSeatKey(gameID, userID string) string { return gameID + "/" + userID }

func numberSeatKey(gameID string, number int) string {
	return gameID + "#" + strconv.Itoa(number)
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateGame(_ context.Context, g *entities.Game) error {
	data, err := encode(g)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[g.ID]; ok {
		return ErrDuplicate
	}
	s.games[g.ID] = data
	return nil
}

func (s *MemoryStore) GetGame(_ context.Context, id string) (*entities.Game, error) {
	s.mu.RLock()
	data, ok := s.games[id]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound("game", id)
	}
	return decode[entities.Game](data)
}

func (s *MemoryStore) ListGames(_ context.Context, filter GameFilter) ([]*entities.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	games := make([]*entities.Game, 0, len(s.games))
	for _, data := range s.games {
		g, err := decode[entities.Game](data)
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

// sortGames 新建的在前
func sortGames(games []*entities.Game) {
	sort.Slice(games, func(i, j int) bool {
		if games[i].CreatedAt.Equal(games[j].CreatedAt) {
			return games[i].ID < games[j].ID
		}
		return games[i].CreatedAt.After(games[j].CreatedAt)
	})
}

func (s *MemoryStore) UpdateGame(_ context.Context, id string, fn func(*entities.Game) error) (*entities.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.games[id]
	if !ok {
		return nil, notFound("game", id)
	}
	g, err := decode[entities.Game](data)
	if err != nil {
		return nil, err
	}
	if err := fn(g); err != nil {
		return nil, err
	}
	g.ID = id
	g.Version++
	next, err := encode(g)
	if err != nil {
		return nil, err
	}
	s.games[id] = next
	return g, nil
}

func (s *MemoryStore) InsertParticipant(_ context.Context, p *entities.Participant) error {
	data, err := encode(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	userKey, numberKey := userSeatKey(p.GameID, p.UserID), numberSeatKey(p.GameID, p.PlayerNumber)
	if _, ok := s.participants[p.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := s.seatKeys[userKey]; ok {
		return ErrDuplicate
	}
	if _, ok := s.seatKeys[numberKey]; ok {
		return ErrDuplicate
	}
	s.participants[p.ID] = data
	s.seatKeys[userKey] = p.ID
	s.seatKeys[numberKey] = p.ID
	return nil
}

func (s *MemoryStore) GetParticipant(_ context.Context, id string) (*entities.Participant, error) {
	s.mu.RLock()
	data, ok := s.participants[id]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound("participant", id)
	}
	return decode[entities.Participant](data)
}

func (s *MemoryStore) ListParticipants(_ context.Context, gameID string) ([]*entities.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entities.Participant
	for _, data := range s.participants {
		p, err := decode[entities.Participant](data)
		if err != nil {
			return nil, err
		}
		if p.GameID == gameID {
			out = append(out, p)
		}
	}
	sortParticipants(out)
	return out, nil
}

func sortParticipants(ps []*entities.Participant) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].PlayerNumber < ps[j].PlayerNumber })
}

func (s *MemoryStore) UpdateParticipant(_ context.Context, id string, fn func(*entities.Participant) error) (*entities.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.participants[id]
	if !ok {
		return nil, notFound("participant", id)
	}
	p, err := decode[entities.Participant](data)
	if err != nil {
		return nil, err
	}
	gameID, userID, number := p.GameID, p.UserID, p.PlayerNumber
	if err := fn(p); err != nil {
		return nil, err
	}
	// 座位相关字段不允许修改
	p.ID, p.GameID, p.UserID, p.PlayerNumber = id, gameID, userID, number
	p.Version++
	next, err := encode(p)
	if err != nil {
		return nil, err
	}
	s.participants[id] = next
	return p, nil
}

func (s *MemoryStore) CreatePlayerState(_ context.Context, ps *entities.PlayerState) error {
	data, err := encode(ps)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.playerStates[ps.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := s.stateByOwner[ps.ParticipantID]; ok {
		return ErrDuplicate
	}
	s.playerStates[ps.ID] = data
	s.stateByOwner[ps.ParticipantID] = ps.ID
	return nil
}

func (s *MemoryStore) GetPlayerState(_ context.Context, id string) (*entities.PlayerState, error) {
	s.mu.RLock()
	data, ok := s.playerStates[id]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound("player state", id)
	}
	return decode[entities.PlayerState](data)
}

func (s *MemoryStore) GetPlayerStateByParticipant(ctx context.Context, participantID string) (*entities.PlayerState, error) {
	s.mu.RLock()
	id, ok := s.stateByOwner[participantID]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound("player state for participant", participantID)
	}
	return s.GetPlayerState(ctx, id)
}

func (s *MemoryStore) ListPlayerStates(_ context.Context, gameID string) ([]*entities.PlayerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entities.PlayerState
	for _, data := range s.playerStates {
		ps, err := decode[entities.PlayerState](data)
		if err != nil {
			return nil, err
		}
		if ps.GameID == gameID {
			out = append(out, ps)
		}
	}
	sortPlayerStates(out)
	return out, nil
}

func sortPlayerStates(states []*entities.PlayerState) {
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
}

func (s *MemoryStore) UpdatePlayerState(_ context.Context, id string, fn func(*entities.PlayerState) error) (*entities.PlayerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.playerStates[id]
	if !ok {
		return nil, notFound("player state", id)
	}
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
	next, err := encode(ps)
	if err != nil {
		return nil, err
	}
	s.playerStates[id] = next
	return ps, nil
}

var _ Store = (*MemoryStore)(nil)
