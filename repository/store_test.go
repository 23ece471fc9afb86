package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go-khora/apperr"
	"go-khora/entities"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type storeFactory func(t *testing.T) Store

func storeFactories(t *testing.T) map[string]storeFactory {
	t.Helper()
	factories := map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store {
			path := filepath.Join(t.TempDir(), "khora.db")
			s, err := OpenSQL(context.Background(), DriverSQLite, path, 0)
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		factories["redis"] = func(t *testing.T) Store {
			s, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr, DB: 15})
			if err != nil {
				t.Fatalf("open redis: %v", err)
			}
			if err := s.Client().FlushDB(context.Background()).Err(); err != nil {
				t.Fatalf("flush redis: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		}
	}
	return factories
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range storeFactories(t) {
		factory := factory
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func sampleGame(id string, status entities.GameStatus, public bool, created time.Time) *entities.Game {
	return &entities.Game{
		ID:           id,
		Name:         "game " + id,
		CreatedBy:    "host",
		Status:       status,
		CurrentRound: 1,
		TotalRound:   9,
		CurrentPhase: entities.PhaseSetup,
		MinPlayers:   2,
		MaxPlayers:   4,
		IsPublic:     public,
		GameOptions:  map[string]interface{}{},
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestGameRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		g := sampleGame("g1", entities.GameStatusLobby, true, testNow)
		g.GameOptions["starting_drachmas"] = 3
		if err := s.CreateGame(ctx, g); err != nil {
			t.Fatalf("create game: %v", err)
		}
		if err := s.CreateGame(ctx, g); !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected duplicate, got %v", err)
		}

		got, err := s.GetGame(ctx, "g1")
		if err != nil {
			t.Fatalf("get game: %v", err)
		}
		if got.Name != g.Name || got.Status != g.Status || !got.CreatedAt.Equal(testNow) {
			t.Fatalf("unexpected game %+v", got)
		}
		if got.GameOptions["starting_drachmas"] != float64(3) {
			t.Fatalf("options not persisted: %+v", got.GameOptions)
		}

		if _, err := s.GetGame(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestUpdateGameBumpsVersion(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.CreateGame(ctx, sampleGame("g1", entities.GameStatusLobby, true, testNow)); err != nil {
			t.Fatal(err)
		}
		updated, err := s.UpdateGame(ctx, "g1", func(g *entities.Game) error {
			g.Status = entities.GameStatusSetup
			return nil
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.Version != 1 || updated.Status != entities.GameStatusSetup {
			t.Fatalf("unexpected update result %+v", updated)
		}

		boom := errors.New("boom")
		if _, err := s.UpdateGame(ctx, "g1", func(g *entities.Game) error {
			g.Status = entities.GameStatusCompleted
			return boom
		}); !errors.Is(err, boom) {
			t.Fatalf("expected mutation error, got %v", err)
		}
		got, _ := s.GetGame(ctx, "g1")
		if got.Status != entities.GameStatusSetup || got.Version != 1 {
			t.Fatalf("failed mutation was written: %+v", got)
		}
	})
}

func TestListGamesFilter(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		games := []*entities.Game{
			sampleGame("old", entities.GameStatusLobby, true, testNow),
			sampleGame("new", entities.GameStatusStarted, true, testNow.Add(time.Hour)),
			sampleGame("private", entities.GameStatusLobby, false, testNow.Add(2*time.Hour)),
			sampleGame("done", entities.GameStatusCompleted, true, testNow.Add(3*time.Hour)),
		}
		for _, g := range games {
			if err := s.CreateGame(ctx, g); err != nil {
				t.Fatal(err)
			}
		}

		got, err := s.ListGames(ctx, GameFilter{
			PublicOnly: true,
			Statuses:   []entities.GameStatus{entities.GameStatusLobby, entities.GameStatusStarted},
		})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 2 || got[0].ID != "new" || got[1].ID != "old" {
			ids := make([]string, len(got))
			for i, g := range got {
				ids[i] = g.ID
			}
			t.Fatalf("unexpected games %v", ids)
		}

		all, err := s.ListGames(ctx, GameFilter{Limit: 3})
		if err != nil || len(all) != 3 {
			t.Fatalf("limit not applied: %d %v", len(all), err)
		}
	})
}

func TestParticipantUniqueness(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		p1 := &entities.Participant{ID: "p1", GameID: "g1", UserID: "u1", PlayerNumber: 1, IsHost: true, IsActive: true, JoinedAt: testNow}
		if err := s.InsertParticipant(ctx, p1); err != nil {
			t.Fatal(err)
		}
		sameUser := &entities.Participant{ID: "p2", GameID: "g1", UserID: "u1", PlayerNumber: 2, IsActive: true, JoinedAt: testNow}
		if err := s.InsertParticipant(ctx, sameUser); !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected duplicate user, got %v", err)
		}
		sameNumber := &entities.Participant{ID: "p3", GameID: "g1", UserID: "u3", PlayerNumber: 1, IsActive: true, JoinedAt: testNow}
		if err := s.InsertParticipant(ctx, sameNumber); !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected duplicate number, got %v", err)
		}
		otherGame := &entities.Participant{ID: "p4", GameID: "g2", UserID: "u1", PlayerNumber: 1, IsActive: true, JoinedAt: testNow}
		if err := s.InsertParticipant(ctx, otherGame); err != nil {
			t.Fatalf("same user in another game: %v", err)
		}
		p2 := &entities.Participant{ID: "p2", GameID: "g1", UserID: "u2", PlayerNumber: 2, IsActive: true, JoinedAt: testNow}
		if err := s.InsertParticipant(ctx, p2); err != nil {
			t.Fatal(err)
		}

		list, err := s.ListParticipants(ctx, "g1")
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 2 || list[0].ID != "p1" || list[1].ID != "p2" {
			t.Fatalf("unexpected participants %+v", list)
		}
	})
}

func TestUpdateParticipantKeepsSeat(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		p := &entities.Participant{ID: "p1", GameID: "g1", UserID: "u1", PlayerNumber: 1, IsActive: true, JoinedAt: testNow}
		if err := s.InsertParticipant(ctx, p); err != nil {
			t.Fatal(err)
		}
		left := testNow.Add(time.Minute)
		updated, err := s.UpdateParticipant(ctx, "p1", func(p *entities.Participant) error {
			p.IsActive = false
			p.LeftAt = &left
			p.LeftReason = entities.LeftReasonLeft
			p.PlayerNumber = 9
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if updated.PlayerNumber != 1 || updated.IsActive || updated.LeftReason != entities.LeftReasonLeft || updated.Version != 1 {
			t.Fatalf("unexpected participant %+v", updated)
		}
		got, err := s.GetParticipant(ctx, "p1")
		if err != nil {
			t.Fatal(err)
		}
		if got.LeftAt == nil || !got.LeftAt.Equal(left) {
			t.Fatalf("left_at not persisted: %+v", got)
		}
	})
}

func TestPlayerStateLookup(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		ps := entities.NewPlayerState("ps1", "g1", "p1", 5, 1, testNow)
		if err := s.CreatePlayerState(ctx, ps); err != nil {
			t.Fatal(err)
		}
		if err := s.CreatePlayerState(ctx, entities.NewPlayerState("ps2", "g1", "p1", 0, 0, testNow)); !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected one state per participant, got %v", err)
		}
		got, err := s.GetPlayerStateByParticipant(ctx, "p1")
		if err != nil {
			t.Fatal(err)
		}
		if got.ID != "ps1" || got.Drachmas != 5 || got.EconomyTrack != 1 {
			t.Fatalf("unexpected state %+v", got)
		}
		if _, err := s.GetPlayerStateByParticipant(ctx, "nobody"); apperr.KindOf(err) != apperr.KindNotFound {
			t.Fatalf("expected not found, got %v", err)
		}
		list, err := s.ListPlayerStates(ctx, "g1")
		if err != nil || len(list) != 1 {
			t.Fatalf("list: %v %d", err, len(list))
		}
	})
}

// 两个并发扣款只能成功一个，另一个看到的是扣款后的余额
func TestUpdatePlayerStateIsLinearizable(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.CreatePlayerState(ctx, entities.NewPlayerState("ps1", "g1", "p1", 3, 0, testNow)); err != nil {
			t.Fatal(err)
		}

		const workers = 2
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			success  int
			rejected int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.UpdatePlayerState(ctx, "ps1", func(ps *entities.PlayerState) error {
					if ps.Drachmas < 2 {
						return apperr.Insufficient("Insufficient drachmas: need 2, have %d", ps.Drachmas)
					}
					ps.Drachmas -= 2
					return nil
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					success++
				case errors.Is(err, apperr.ErrInsufficientResource):
					rejected++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if success != 1 || rejected != 1 {
			t.Fatalf("success=%d rejected=%d", success, rejected)
		}
		got, err := s.GetPlayerState(ctx, "ps1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Drachmas != 1 || got.Version != 1 {
			t.Fatalf("drachmas=%d version=%d", got.Drachmas, got.Version)
		}
	})
}

func TestConcurrentCounterNeverLosesUpdates(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.CreatePlayerState(ctx, entities.NewPlayerState("ps1", "g1", "p1", 0, 0, testNow)); err != nil {
			t.Fatal(err)
		}
		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.UpdatePlayerState(ctx, "ps1", func(ps *entities.PlayerState) error {
					ps.Drachmas++
					return nil
				})
				if err != nil && !errors.Is(err, apperr.ErrConflict) {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("update: %v", err)
		}

		got, err := s.GetPlayerState(ctx, "ps1")
		if err != nil {
			t.Fatal(err)
		}
		// 冲突用完重试的会返回 Conflict，不会被静默丢弃
		if int64(got.Drachmas) != got.Version {
			t.Fatalf("lost update: drachmas=%d version=%d", got.Drachmas, got.Version)
		}
	})
}

func TestWithRetryGivesUp(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, "player state", "ps1", func() (bool, error) {
		calls++
		return false, nil
	})
	if calls != 3 {
		t.Fatalf("calls = %d", calls)
	}
	if !errors.Is(err, apperr.ErrConflict) || !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestOpenSQLRejectsBadInput(t *testing.T) {
	if _, err := OpenSQL(context.Background(), DriverSQLite, "", 0); err == nil {
		t.Fatal("expected empty dsn error")
	}
	if _, err := OpenSQL(context.Background(), "postgres", "x", 0); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"khora.db", "khora.db?" + sqlitePragmas},
		{"file:khora.db?cache=shared", "file:khora.db?cache=shared&" + sqlitePragmas},
	}
	for _, tt := range tests {
		if got := sqliteDSN(tt.path); got != tt.want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestOpenSQLiteWithQuery(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "khora.db") + "?cache=shared"
	s, err := OpenSQL(context.Background(), DriverSQLite, dsn, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	g := sampleGame("g1", entities.GameStatusLobby, true, testNow)
	if err := s.CreateGame(context.Background(), g); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestCreatePlayerStateRace(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		const n = 8
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ps := entities.NewPlayerState("ps-"+string(rune('a'+i)), "g1", "p1", 0, 0, testNow)
				errs[i] = s.CreatePlayerState(ctx, ps)
				if errors.Is(errs[i], ErrDuplicate) {
					// 输掉竞争的一方马上能查到赢家的记录
					if _, err := s.GetPlayerStateByParticipant(ctx, "p1"); err != nil {
						t.Errorf("lookup after duplicate: %v", err)
					}
				}
			}(i)
		}
		wg.Wait()

		created := 0
		for _, err := range errs {
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrDuplicate):
			default:
				t.Errorf("unexpected err: %v", err)
			}
		}
		if created != 1 {
			t.Fatalf("created = %d, want 1", created)
		}
		states, err := s.ListPlayerStates(ctx, "g1")
		if err != nil || len(states) != 1 {
			t.Fatalf("states = %v, %v", states, err)
		}
	})
}
