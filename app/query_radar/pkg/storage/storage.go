package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/iWorld-y/query_radar/app/query_radar/pkg/config"
	"github.com/iWorld-y/query_radar/app/query_radar/pkg/report"
)

// Report 一个 URL 的合并报表
type Report struct {
	URL    string
	File   string
	Header []string
	Rows   []report.Row
}

// Storage 报表归档，支持 postgres 和 sqlite
type Storage struct {
	db     *sql.DB
	driver string
}

// Open 按配置连接数据库并建表
func Open(cfg config.DBConfig) (*Storage, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case "postgres":
		connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)
		db, err = sql.Open("postgres", connStr)
	case "sqlite":
		// 空路径会让连接池中的每个连接各自打开一个内存数据库
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		db, err = sql.Open("sqlite", cfg.Path)
	default:
		return nil, fmt.Errorf("unknown db driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	s := New(db, cfg.Driver)
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// New 使用已有连接，不做建表
func New(db *sql.DB, driver string) *Storage {
	return &Storage{db: db, driver: driver}
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// rebind 把 ? 占位符转换为 postgres 的 $n
func (s *Storage) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *Storage) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS report_runs (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reports (
			run_id TEXT NOT NULL,
			url TEXT NOT NULL,
			file TEXT NOT NULL,
			header TEXT NOT NULL,
			PRIMARY KEY (run_id, url)
		)`,
		`CREATE TABLE IF NOT EXISTS report_rows (
			run_id TEXT NOT NULL,
			url TEXT NOT NULL,
			row_index INTEGER NOT NULL,
			identity TEXT NOT NULL,
			metrics TEXT NOT NULL,
			PRIMARY KEY (run_id, url, row_index)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateRun 记录一次运行，返回运行 ID
func (s *Storage) CreateRun(ctx context.Context) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO report_runs (id, created_at) VALUES (?, ?)`),
		id, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// SaveReport 在一个事务中保存报表头和所有行
func (s *Storage) SaveReport(ctx context.Context, runID string, rep *Report) error {
	header, err := json.Marshal(rep.Header)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO reports (run_id, url, file, header) VALUES (?, ?, ?, ?)`),
		runID, rep.URL, rep.File, string(header)); err != nil {
		return rollback(tx, fmt.Errorf("failed to insert report: %w", err))
	}

	insertRow := s.rebind(`INSERT INTO report_rows (run_id, url, row_index, identity, metrics) VALUES (?, ?, ?, ?, ?)`)
	for i, row := range rep.Rows {
		identity, err := json.Marshal(row.Identity)
		if err != nil {
			return rollback(tx, err)
		}
		metrics, err := json.Marshal(row.Values)
		if err != nil {
			return rollback(tx, err)
		}
		if _, err := tx.ExecContext(ctx, insertRow, runID, rep.URL, i, string(identity), string(metrics)); err != nil {
			return rollback(tx, fmt.Errorf("failed to insert row %d: %w", i, err))
		}
	}

	return tx.Commit()
}

func rollback(tx *sql.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		err = fmt.Errorf("%w: %v", err, rerr)
	}
	return err
}
