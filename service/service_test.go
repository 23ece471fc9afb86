package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go-khora/apperr"
	"go-khora/entities"
	"go-khora/repository"

	"go.uber.org/zap/zaptest"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

var errInjected = errors.New("injected failure")

func testStores(t *testing.T) map[string]func(t *testing.T) repository.Store {
	t.Helper()
	return map[string]func(t *testing.T) repository.Store{
		"memory": func(t *testing.T) repository.Store { return repository.NewMemoryStore() },
		"sqlite": func(t *testing.T) repository.Store {
			s, err := repository.OpenSQL(context.Background(), repository.DriverSQLite, filepath.Join(t.TempDir(), "khora.db"), 0)
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, store repository.Store)) {
	for name, factory := range testStores(t) {
		factory := factory
		t.Run(name, func(t *testing.T) { fn(t, factory(t)) })
	}
}

func newTestService(t *testing.T, store repository.Store, opts ...Option) *Service {
	t.Helper()
	var mu sync.Mutex
	n := 0
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("id-%03d", n)
		}),
		WithRandSeed(7),
	}
	return New(store, zaptest.NewLogger(t), append(base, opts...)...)
}

// faultyStore 对指定的行注入写入失败
type faultyStore struct {
	repository.Store

	mu                sync.Mutex
	failPlayerStates  map[string]bool
	failParticipants  map[string]bool
	failGameUpdatesAt int // 第 n 次 UpdateGame 失败，0 表示不注入
	gameUpdates       int
}

func newFaultyStore(inner repository.Store) *faultyStore {
	return &faultyStore{Store: inner, failPlayerStates: map[string]bool{}, failParticipants: map[string]bool{}}
}

func (f *faultyStore) UpdatePlayerState(ctx context.Context, id string, fn func(*entities.PlayerState) error) (*entities.PlayerState, error) {
	f.mu.Lock()
	fail := f.failPlayerStates[id]
	f.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return f.Store.UpdatePlayerState(ctx, id, fn)
}

func (f *faultyStore) UpdateParticipant(ctx context.Context, id string, fn func(*entities.Participant) error) (*entities.Participant, error) {
	f.mu.Lock()
	fail := f.failParticipants[id]
	f.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return f.Store.UpdateParticipant(ctx, id, fn)
}

func (f *faultyStore) UpdateGame(ctx context.Context, id string, fn func(*entities.Game) error) (*entities.Game, error) {
	f.mu.Lock()
	f.gameUpdates++
	fail := f.failGameUpdatesAt > 0 && f.gameUpdates == f.failGameUpdatesAt
	f.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return f.Store.UpdateGame(ctx, id, fn)
}

// recordingNotifier 记录所有事件
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func createLobby(t *testing.T, svc *Service, host string, users ...string) *GameDetail {
	t.Helper()
	ctx := context.Background()
	detail, err := svc.CreateGame(ctx, host, CreateGameInput{Name: "Athens night"})
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	for _, u := range users {
		if _, err := svc.Join(ctx, detail.Game.ID, u); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
	}
	return detail
}

// startedGame 两人局，城市已经分配，游戏进入第一回合
func startedGame(t *testing.T, svc *Service) (gameID string, states []*entities.PlayerState) {
	t.Helper()
	ctx := context.Background()
	detail := createLobby(t, svc, "host", "guest")
	gameID = detail.Game.ID
	if _, err := svc.StartSetup(ctx, gameID, "host"); err != nil {
		t.Fatalf("start setup: %v", err)
	}
	if _, err := svc.AssignStartingCities(ctx, gameID, "host"); err != nil {
		t.Fatalf("assign cities: %v", err)
	}
	if _, err := svc.StartGame(ctx, gameID, "host"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	full, err := svc.GetGame(ctx, gameID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	return gameID, full.PlayerStates
}

func setDrachmas(t *testing.T, store repository.Store, id string, drachmas, tax int) {
	t.Helper()
	_, err := store.UpdatePlayerState(context.Background(), id, func(ps *entities.PlayerState) error {
		ps.Drachmas = drachmas
		ps.TaxTrack = tax
		ps.EconomyTrack = 1
		return nil
	})
	if err != nil {
		t.Fatalf("seed player state: %v", err)
	}
}

func TestDecodeGameOptions(t *testing.T) {
	opts, err := DecodeGameOptions(map[string]interface{}{
		"starting_drachmas":          "4",
		"starting_philosophy_tokens": 2,
		"bonus_policy":               "raw_levels",
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if opts.StartingDrachmas == nil || *opts.StartingDrachmas != 4 {
		t.Errorf("starting_drachmas = %v", opts.StartingDrachmas)
	}
	if opts.StartingPhilosophy == nil || *opts.StartingPhilosophy != 2 {
		t.Errorf("starting_philosophy_tokens = %v", opts.StartingPhilosophy)
	}

	bad := []map[string]interface{}{
		{"starting_drachmas": "lots"},
		{"starting_drachmas": -1},
		{"starting_philosophy_tokens": -2},
		{"bonus_policy": "double"},
	}
	for _, raw := range bad {
		if _, err := DecodeGameOptions(raw); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("DecodeGameOptions(%v) err = %v, want validation", raw, err)
		}
	}
}

func TestRulesFor(t *testing.T) {
	svc := newTestService(t, repository.NewMemoryStore(), WithStartingResources(5, 1))
	rules := svc.rulesFor(nil)
	if rules.drachmas != 5 || rules.philosophy != 1 || rules.policy != svc.policy {
		t.Errorf("defaults = %+v", rules)
	}
	rules = svc.rulesFor(map[string]interface{}{"starting_drachmas": 9})
	if rules.drachmas != 9 || rules.philosophy != 1 {
		t.Errorf("override = %+v", rules)
	}
}

func TestCreateGame(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repository.Store) {
		rec := &recordingNotifier{}
		svc := newTestService(t, store, WithNotifier(rec))
		ctx := context.Background()

		detail, err := svc.CreateGame(ctx, "host", CreateGameInput{Name: "  Delphi  "})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		g := detail.Game
		if g.Name != "Delphi" || g.Status != entities.GameStatusLobby || g.CurrentRound != 1 ||
			g.TotalRound != entities.DefaultTotalRound || g.CurrentPhase != entities.PhaseSetup {
			t.Errorf("game = %+v", g)
		}
		if len(g.JoinCode) != 6 {
			t.Errorf("join code = %q", g.JoinCode)
		}
		if len(detail.Participants) != 1 || detail.Participants[0].PlayerNumber != 1 || !detail.Participants[0].IsHost {
			t.Errorf("creator participant = %+v", detail.Participants)
		}
		if got := rec.types(); len(got) != 1 || got[0] != EventGameCreated {
			t.Errorf("events = %v", got)
		}

		games, err := svc.ListGames(ctx, 10)
		if err != nil || len(games) != 1 {
			t.Fatalf("list = %v, %v", games, err)
		}

		if _, err := svc.CreateGame(ctx, "host", CreateGameInput{Name: ""}); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("empty name err = %v", err)
		}
		if _, err := svc.CreateGame(ctx, "", CreateGameInput{Name: "x"}); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("missing user err = %v", err)
		}
		if _, err := svc.CreateGame(ctx, "host", CreateGameInput{Name: "x", MinPlayers: 5, MaxPlayers: 3}); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("bad bounds err = %v", err)
		}
	})
}

func TestGameFlow(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repository.Store) {
		svc := newTestService(t, store, WithStartingResources(3, 1))
		ctx := context.Background()
		detail := createLobby(t, svc, "host", "guest")
		gameID := detail.Game.ID

		if _, err := svc.StartGame(ctx, gameID, "host"); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("start from lobby err = %v", err)
		}
		if _, err := svc.StartSetup(ctx, gameID, "guest"); !errors.Is(err, apperr.ErrAuthorization) {
			t.Errorf("non-host start setup err = %v", err)
		}
		if _, err := svc.StartSetup(ctx, gameID, "host"); err != nil {
			t.Fatalf("start setup: %v", err)
		}
		if _, err := svc.AssignStartingCities(ctx, gameID, "guest"); !errors.Is(err, apperr.ErrAuthorization) {
			t.Errorf("non-host assign err = %v", err)
		}

		results, err := svc.AssignStartingCities(ctx, gameID, "host")
		if err != nil {
			t.Fatalf("assign: %v", err)
		}
		if len(results) != 2 || results[0].CityID == results[1].CityID {
			t.Errorf("assignments = %+v", results)
		}
		for _, r := range results {
			if r.PlayerStateID == "" || r.Effect == nil || r.Error != "" {
				t.Errorf("assignment = %+v", r)
			}
		}
		if _, err := svc.AssignStartingCities(ctx, gameID, "host"); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("second assign err = %v", err)
		}

		g, err := svc.StartGame(ctx, gameID, "host")
		if err != nil {
			t.Fatalf("start game: %v", err)
		}
		if g.Status != entities.GameStatusStarted || g.CurrentPhase != entities.PhaseEventAnnouncement || g.StartedAt == nil {
			t.Errorf("started game = %+v", g)
		}

		full, err := svc.GetGame(ctx, gameID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(full.PlayerStates) != 2 {
			t.Fatalf("player states = %d", len(full.PlayerStates))
		}
		for _, ps := range full.PlayerStates {
			if ps.CityID == "" || ps.PhilosophyTokens < 1 || !ps.NonNegative() {
				t.Errorf("player state = %+v", ps)
			}
		}
	})
}

func TestAssignStartingCitiesDeterministic(t *testing.T) {
	assign := func() []string {
		svc := newTestService(t, repository.NewMemoryStore())
		detail := createLobby(t, svc, "host", "a", "b")
		ctx := context.Background()
		if _, err := svc.StartSetup(ctx, detail.Game.ID, "host"); err != nil {
			t.Fatalf("start setup: %v", err)
		}
		results, err := svc.AssignStartingCities(ctx, detail.Game.ID, "host")
		if err != nil {
			t.Fatalf("assign: %v", err)
		}
		var ids []string
		for _, r := range results {
			ids = append(ids, r.CityID)
		}
		return ids
	}
	first, second := assign(), assign()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("same seed gave %v and %v", first, second)
		}
	}
}

func TestAssignStartingCitiesPartialFailure(t *testing.T) {
	inner := repository.NewMemoryStore()
	store := newFaultyStore(inner)
	svc := newTestService(t, store)
	ctx := context.Background()
	detail := createLobby(t, svc, "host", "guest")
	if _, err := svc.StartSetup(ctx, detail.Game.ID, "host"); err != nil {
		t.Fatalf("start setup: %v", err)
	}
	// 新建的玩家状态 id 由计数器生成，先建好再让其中一行写失败
	guest := detail.Participants[0]
	participants, _ := inner.ListParticipants(ctx, detail.Game.ID)
	for _, p := range participants {
		if p.UserID == "guest" {
			guest = p
		}
	}
	ps, err := svc.ensurePlayerState(ctx, detail.Game.ID, guest.ID, svc.rulesFor(nil))
	if err != nil {
		t.Fatalf("ensure player state: %v", err)
	}
	store.failPlayerStates[ps.ID] = true

	results, err := svc.AssignStartingCities(ctx, detail.Game.ID, "host")
	if !errors.Is(err, apperr.ErrConsistency) {
		t.Fatalf("err = %v, want consistency", err)
	}
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
			if r.ParticipantID != guest.ID {
				t.Errorf("unexpected failure %+v", r)
			}
		}
	}
	if len(results) != 2 || failed != 1 {
		t.Errorf("results = %+v", results)
	}
}

func TestChangePhase(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repository.Store) {
		rec := &recordingNotifier{}
		svc := newTestService(t, store, WithNotifier(rec))
		ctx := context.Background()
		gameID, _ := startedGame(t, svc)

		if _, err := svc.ChangePhase(ctx, gameID, "guest", entities.PhaseTax); !errors.Is(err, apperr.ErrAuthorization) {
			t.Errorf("non-host err = %v", err)
		}
		if _, err := svc.ChangePhase(ctx, gameID, "host", "Siesta"); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("unknown phase err = %v", err)
		}
		g, err := svc.ChangePhase(ctx, gameID, "host", entities.PhaseTax)
		if err != nil {
			t.Fatalf("change phase: %v", err)
		}
		if g.CurrentPhase != entities.PhaseTax || g.CurrentRound != 1 {
			t.Errorf("game = %+v", g)
		}

		if _, err := svc.ChangePhase(ctx, gameID, "host", entities.PhaseAchievementTracking); err != nil {
			t.Fatalf("to achievement: %v", err)
		}
		g, err = svc.ChangePhase(ctx, gameID, "host", entities.PhaseEventAnnouncement)
		if err != nil {
			t.Fatalf("next round: %v", err)
		}
		if g.CurrentRound != 2 {
			t.Errorf("round = %d, want 2", g.CurrentRound)
		}
	})
}

func TestChangePhaseLastRound(t *testing.T) {
	svc := newTestService(t, repository.NewMemoryStore())
	ctx := context.Background()
	gameID, _ := startedGame(t, svc)
	_, err := svc.store.UpdateGame(ctx, gameID, func(g *entities.Game) error {
		g.CurrentRound = g.TotalRound
		g.CurrentPhase = entities.PhaseAchievementTracking
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.ChangePhase(ctx, gameID, "host", entities.PhaseEventAnnouncement); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	g, err := svc.FinishGame(ctx, gameID, "host")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if g.Status != entities.GameStatusCompleted || g.EndedAt == nil {
		t.Errorf("finished game = %+v", g)
	}
	if _, err := svc.ChangePhase(ctx, gameID, "host", entities.PhaseTax); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("phase change after finish err = %v", err)
	}
}

func TestConcurrentPhaseChanges(t *testing.T) {
	svc := newTestService(t, repository.NewMemoryStore())
	ctx := context.Background()
	gameID, _ := startedGame(t, svc)
	if _, err := svc.ChangePhase(ctx, gameID, "host", entities.PhaseAchievementTracking); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.ChangePhase(ctx, gameID, "host", entities.PhaseEventAnnouncement)
		}()
	}
	wg.Wait()

	g, err := svc.store.GetGame(ctx, gameID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// 第一个请求进入第2回合，第二个请求从 Event Announcement 再次进入 Event Announcement，不加回合
	if g.CurrentRound != 2 || g.CurrentPhase != entities.PhaseEventAnnouncement {
		t.Errorf("game = round %d phase %s", g.CurrentRound, g.CurrentPhase)
	}
}

func TestAssignStartingCitiesLateJoiner(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repository.Store) {
		svc := newTestService(t, store)
		ctx := context.Background()
		detail := createLobby(t, svc, "alice", "bob")
		gameID := detail.Game.ID
		if _, err := svc.StartSetup(ctx, gameID, "alice"); err != nil {
			t.Fatalf("start setup: %v", err)
		}
		first, err := svc.AssignStartingCities(ctx, gameID, "alice")
		if err != nil {
			t.Fatalf("assign: %v", err)
		}
		carol, err := svc.Join(ctx, gameID, "carol")
		if err != nil {
			t.Fatalf("late join: %v", err)
		}
		if _, err := svc.StartGame(ctx, gameID, "alice"); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("start without carol's city err = %v", err)
		}

		second, err := svc.AssignStartingCities(ctx, gameID, "alice")
		if err != nil {
			t.Fatalf("assign late joiner: %v", err)
		}
		if len(second) != 1 || second[0].ParticipantID != carol.ID {
			t.Fatalf("second round = %+v", second)
		}
		for _, r := range first {
			if r.CityID == second[0].CityID {
				t.Errorf("carol got an already taken city %s", r.CityID)
			}
		}
		if _, err := svc.StartGame(ctx, gameID, "alice"); err != nil {
			t.Fatalf("start game: %v", err)
		}
	})
}
