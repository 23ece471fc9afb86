package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-khora/entities"

	"github.com/go-sql-driver/mysql"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// 两种驱动共用的建表语句，索引都写成表内唯一约束
var schema = []string{
	`CREATE TABLE IF NOT EXISTS games (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		status VARCHAR(32) NOT NULL,
		is_public INTEGER NOT NULL,
		created_by VARCHAR(64) NOT NULL,
		version BIGINT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		data TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS game_participants (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		game_id VARCHAR(64) NOT NULL,
		user_id VARCHAR(64) NOT NULL,
		player_number INTEGER NOT NULL,
		is_active INTEGER NOT NULL,
		version BIGINT NOT NULL,
		data TEXT NOT NULL,
		UNIQUE (game_id, user_id),
		UNIQUE (game_id, player_number)
	)`,
	`CREATE TABLE IF NOT EXISTS player_states (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		game_id VARCHAR(64) NOT NULL,
		participant_id VARCHAR(64) NOT NULL,
		version BIGINT NOT NULL,
		data TEXT NOT NULL,
		UNIQUE (participant_id),
		UNIQUE (game_id, id)
	)`,
}

// SQLStore MySQL 用于线上，SQLite 用于本地开发和测试
type SQLStore struct {
	db         *sql.DB
	driver     string
	maxRetries int
}

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// sqliteDSN 路径里可能已经带了查询参数，例如 file:x.db?cache=shared
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + sqlitePragmas
	}
	return path + "?" + sqlitePragmas
}

// OpenSQL 打开数据库并建表
func OpenSQL(ctx context.Context, driver, dsn string, maxRetries int) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("数据库连接串不能为空")
	}
	switch driver {
	case DriverMySQL:
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return nil, fmt.Errorf("解析 MySQL DSN 失败: %w", err)
		}
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if driver == DriverSQLite {
		// sqlite 只有一个写连接
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("建表失败: %w", err)
		}
	}
	return &SQLStore{db: db, driver: driver, maxRetries: maxRetries}, nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation 两种驱动的唯一约束错误
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr *msqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func (s *SQLStore) insert(ctx context.Context, what, query string, args ...interface{}) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", what, ErrDuplicate)
		}
		return fmt.Errorf("写入%s失败: %w", what, err)
	}
	return nil
}

func (s *SQLStore) loadData(ctx context.Context, what, id, query string, args ...interface{}) ([]byte, int64, error) {
	var (
		data    []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, notFound(what, id)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("读取%s失败: %w", what, err)
	}
	return data, version, nil
}

// casExec 版本号匹配才更新，没有命中的行表示被别人改过了
func (s *SQLStore) casExec(ctx context.Context, what, query string, args ...interface{}) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("更新%s失败: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新%s失败: %w", what, err)
	}
	return n == 1, nil
}

func (s *SQLStore) CreateGame(ctx context.Context, g *entities.Game) error {
	data, err := encode(g)
	if err != nil {
		return err
	}
	return s.insert(ctx, "game",
		`INSERT INTO games (id, status, is_public, created_by, version, created_at, updated_at, data) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, string(g.Status), boolInt(g.IsPublic), g.CreatedBy, g.Version, toMillis(g.CreatedAt), toMillis(g.UpdatedAt), data)
}

func (s *SQLStore) GetGame(ctx context.Context, id string) (*entities.Game, error) {
	data, version, err := s.loadData(ctx, "game", id, `SELECT data, version FROM games WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	g, err := decode[entities.Game](data)
	if err != nil {
		return nil, err
	}
	g.Version = version
	return g, nil
}

func (s *SQLStore) ListGames(ctx context.Context, filter GameFilter) ([]*entities.Game, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.PublicOnly {
		where = append(where, "is_public = 1")
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	query := `SELECT data, version FROM games`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询游戏列表失败: %w", err)
	}
	defer rows.Close()

	var games []*entities.Game
	for rows.Next() {
		var (
			data    []byte
			version int64
		)
		if err := rows.Scan(&data, &version); err != nil {
			return nil, fmt.Errorf("读取游戏列表失败: %w", err)
		}
		g, err := decode[entities.Game](data)
		if err != nil {
			return nil, err
		}
		g.Version = version
		games = append(games, g)
	}
	return games, rows.Err()
}

func (s *SQLStore) UpdateGame(ctx context.Context, id string, fn func(*entities.Game) error) (*entities.Game, error) {
	var out *entities.Game
	err := withRetry(ctx, s.maxRetries, "game", id, func() (bool, error) {
		g, err := s.GetGame(ctx, id)
		if err != nil {
			return false, err
		}
		if err := fn(g); err != nil {
			return false, err
		}
		prev := g.Version
		g.ID = id
		g.Version = prev + 1
		data, err := encode(g)
		if err != nil {
			return false, err
		}
		ok, err := s.casExec(ctx, "game",
			`UPDATE games SET status = ?, is_public = ?, created_by = ?, version = ?, updated_at = ?, data = ? WHERE id = ? AND version = ?`,
			string(g.Status), boolInt(g.IsPublic), g.CreatedBy, g.Version, toMillis(g.UpdatedAt), data, id, prev)
		if ok {
			out = g
		}
		return ok, err
	})
	return out, err
}

func (s *SQLStore) InsertParticipant(ctx context.Context, p *entities.Participant) error {
	data, err := encode(p)
	if err != nil {
		return err
	}
	return s.insert(ctx, "participant",
		`INSERT INTO game_participants (id, game_id, user_id, player_number, is_active, version, data) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.GameID, p.UserID, p.PlayerNumber, boolInt(p.IsActive), p.Version, data)
}

func (s *SQLStore) GetParticipant(ctx context.Context, id string) (*entities.Participant, error) {
	data, version, err := s.loadData(ctx, "participant", id, `SELECT data, version FROM game_participants WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	p, err := decode[entities.Participant](data)
	if err != nil {
		return nil, err
	}
	p.Version = version
	return p, nil
}

func (s *SQLStore) ListParticipants(ctx context.Context, gameID string) ([]*entities.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data, version FROM game_participants WHERE game_id = ? ORDER BY player_number`, gameID)
	if err != nil {
		return nil, fmt.Errorf("查询参与者失败: %w", err)
	}
	defer rows.Close()

	var out []*entities.Participant
	for rows.Next() {
		var (
			data    []byte
			version int64
		)
		if err := rows.Scan(&data, &version); err != nil {
			return nil, fmt.Errorf("读取参与者失败: %w", err)
		}
		p, err := decode[entities.Participant](data)
		if err != nil {
			return nil, err
		}
		p.Version = version
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateParticipant(ctx context.Context, id string, fn func(*entities.Participant) error) (*entities.Participant, error) {
	var out *entities.Participant
	err := withRetry(ctx, s.maxRetries, "participant", id, func() (bool, error) {
		p, err := s.GetParticipant(ctx, id)
		if err != nil {
			return false, err
		}
		gameID, userID, number := p.GameID, p.UserID, p.PlayerNumber
		if err := fn(p); err != nil {
			return false, err
		}
		prev := p.Version
		p.ID, p.GameID, p.UserID, p.PlayerNumber = id, gameID, userID, number
		p.Version = prev + 1
		data, err := encode(p)
		if err != nil {
			return false, err
		}
		ok, err := s.casExec(ctx, "participant",
			`UPDATE game_participants SET is_active = ?, version = ?, data = ? WHERE id = ? AND version = ?`,
			boolInt(p.IsActive), p.Version, data, id, prev)
		if ok {
			out = p
		}
		return ok, err
	})
	return out, err
}

func (s *SQLStore) CreatePlayerState(ctx context.Context, ps *entities.PlayerState) error {
	data, err := encode(ps)
	if err != nil {
		return err
	}
	return s.insert(ctx, "player state",
		`INSERT INTO player_states (id, game_id, participant_id, version, data) VALUES (?, ?, ?, ?, ?)`,
		ps.ID, ps.GameID, ps.ParticipantID, ps.Version, data)
}

func (s *SQLStore) GetPlayerState(ctx context.Context, id string) (*entities.PlayerState, error) {
	return s.getPlayerState(ctx, id, `SELECT data, version FROM player_states WHERE id = ?`, id)
}

func (s *SQLStore) GetPlayerStateByParticipant(ctx context.Context, participantID string) (*entities.PlayerState, error) {
	return s.getPlayerState(ctx, participantID, `SELECT data, version FROM player_states WHERE participant_id = ?`, participantID)
}

func (s *SQLStore) getPlayerState(ctx context.Context, key, query string, args ...interface{}) (*entities.PlayerState, error) {
	data, version, err := s.loadData(ctx, "player state", key, query, args...)
	if err != nil {
		return nil, err
	}
	ps, err := decode[entities.PlayerState](data)
	if err != nil {
		return nil, err
	}
	ps.Version = version
	return ps, nil
}

func (s *SQLStore) ListPlayerStates(ctx context.Context, gameID string) ([]*entities.PlayerState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data, version FROM player_states WHERE game_id = ? ORDER BY id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("查询玩家状态失败: %w", err)
	}
	defer rows.Close()

	var out []*entities.PlayerState
	for rows.Next() {
		var (
			data    []byte
			version int64
		)
		if err := rows.Scan(&data, &version); err != nil {
			return nil, fmt.Errorf("读取玩家状态失败: %w", err)
		}
		ps, err := decode[entities.PlayerState](data)
		if err != nil {
			return nil, err
		}
		ps.Version = version
		out = append(out, ps)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdatePlayerState(ctx context.Context, id string, fn func(*entities.PlayerState) error) (*entities.PlayerState, error) {
	var out *entities.PlayerState
	err := withRetry(ctx, s.maxRetries, "player state", id, func() (bool, error) {
		ps, err := s.GetPlayerState(ctx, id)
		if err != nil {
			return false, err
		}
		gameID, owner := ps.GameID, ps.ParticipantID
		if err := fn(ps); err != nil {
			return false, err
		}
		prev := ps.Version
		ps.ID, ps.GameID, ps.ParticipantID = id, gameID, owner
		ps.Version = prev + 1
		data, err := encode(ps)
		if err != nil {
			return false, err
		}
		ok, err := s.casExec(ctx, "player state",
			`UPDATE player_states SET version = ?, data = ? WHERE id = ? AND version = ?`,
			ps.Version, data, id, prev)
		if ok {
			out = ps
		}
		return ok, err
	})
	return out, err
}

var _ Store = (*SQLStore)(nil)
