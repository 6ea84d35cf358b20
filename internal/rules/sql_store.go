package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/mohamedkhairy/stock-screener/internal/config"
	"github.com/mohamedkhairy/stock-screener/internal/models"
	"github.com/mohamedkhairy/stock-screener/pkg/logger"
	_ "modernc.org/sqlite" // SQLite driver
)

// Dialect selects SQL flavour details
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLRuleStore is a database/sql implementation of RuleStore backed by
// PostgreSQL or SQLite. Timestamps are stored as unix milliseconds and the
// AST as JSON text so both dialects share one schema.
type SQLRuleStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewPostgresRuleStore opens a PostgreSQL-backed rule store
func NewPostgresRuleStore(ctx context.Context, dbConfig config.DatabaseConfig) (*SQLRuleStore, error) {
	db, err := sql.Open("postgres", dbConfig.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(dbConfig.MaxConnections)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	store, err := newSQLRuleStore(ctx, db, DialectPostgres)
	if err != nil {
		return nil, err
	}

	logger.Info("Postgres rule store initialized",
		logger.String("host", dbConfig.Host),
		logger.Int("port", dbConfig.Port),
		logger.String("database", dbConfig.Database),
	)
	return store, nil
}

// NewSQLiteRuleStore opens a SQLite-backed rule store at path.
// ":memory:" gives a private in-memory database.
func NewSQLiteRuleStore(ctx context.Context, path string) (*SQLRuleStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps :memory: shared
	db.SetMaxOpenConns(1)

	store, err := newSQLRuleStore(ctx, db, DialectSQLite)
	if err != nil {
		return nil, err
	}

	logger.Info("SQLite rule store initialized", logger.String("path", path))
	return store, nil
}

func newSQLRuleStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLRuleStore, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLRuleStore{db: db, dialect: dialect}
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// EnsureSchema creates the rules table when missing
func (s *SQLRuleStore) EnsureSchema(ctx context.Context) error {
	astType, boolType := "TEXT", "INTEGER"
	if s.dialect == DialectPostgres {
		astType, boolType = "JSONB", "BOOLEAN"
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS saved_rules (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			ast          %s NOT NULL,
			schedule     TEXT NOT NULL DEFAULT '',
			result_limit INTEGER NOT NULL DEFAULT 0,
			enabled      %s NOT NULL,
			created_at   BIGINT NOT NULL,
			updated_at   BIGINT NOT NULL
		)
	`, astType, boolType)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create saved_rules table: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders as $n for PostgreSQL
func (s *SQLRuleStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const selectRule = `SELECT id, name, ast, schedule, result_limit, enabled, created_at, updated_at FROM saved_rules`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.SavedRule, error) {
	var (
		rule                 models.SavedRule
		astJSON              []byte
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&astJSON,
		&rule.Schedule,
		&rule.Limit,
		&rule.Enabled,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	var ast models.Node
	if err := json.Unmarshal(astJSON, &ast); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ast of rule %s: %w", rule.ID, err)
	}
	rule.AST = &ast
	rule.CreatedAt = time.UnixMilli(createdAt).UTC()
	rule.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &rule, nil
}

// GetRule retrieves a rule by ID
func (s *SQLRuleStore) GetRule(ctx context.Context, id string) (*models.SavedRule, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(selectRule+` WHERE id = ?`), id)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrRuleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rule: %w", err)
	}
	return rule, nil
}

// GetAllRules retrieves all rules, newest first
func (s *SQLRuleStore) GetAllRules(ctx context.Context) ([]*models.SavedRule, error) {
	rows, err := s.db.QueryContext(ctx, selectRule+` ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	rules := make([]*models.SavedRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return rules, nil
}

// AddRule adds a new rule
func (s *SQLRuleStore) AddRule(ctx context.Context, rule *models.SavedRule) error {
	if rule == nil {
		return fmt.Errorf("rule cannot be nil")
	}
	if err := ValidateRule(rule); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}

	astJSON, err := json.Marshal(rule.AST)
	if err != nil {
		return fmt.Errorf("failed to marshal ast: %w", err)
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = now
	}

	var exists int
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM saved_rules WHERE id = ?`), rule.ID).Scan(&exists)
	if err == nil {
		return fmt.Errorf("rule already exists: %s", rule.ID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check rule: %w", err)
	}

	query := s.rebind(`
		INSERT INTO saved_rules (id, name, ast, schedule, result_limit, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = s.db.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		string(astJSON),
		rule.Schedule,
		rule.Limit,
		rule.Enabled,
		rule.CreatedAt.UnixMilli(),
		rule.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// UpdateRule updates an existing rule; created_at is kept
func (s *SQLRuleStore) UpdateRule(ctx context.Context, rule *models.SavedRule) error {
	if rule == nil {
		return fmt.Errorf("rule cannot be nil")
	}
	if err := ValidateRule(rule); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}

	astJSON, err := json.Marshal(rule.AST)
	if err != nil {
		return fmt.Errorf("failed to marshal ast: %w", err)
	}

	rule.UpdatedAt = time.Now().UTC()

	query := s.rebind(`
		UPDATE saved_rules
		SET name = ?, ast = ?, schedule = ?, result_limit = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := s.db.ExecContext(ctx, query,
		rule.Name,
		string(astJSON),
		rule.Schedule,
		rule.Limit,
		rule.Enabled,
		rule.UpdatedAt.UnixMilli(),
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if err := expectOneRow(result, rule.ID); err != nil {
		return err
	}

	stored, err := s.GetRule(ctx, rule.ID)
	if err != nil {
		return err
	}
	rule.CreatedAt = stored.CreatedAt
	return nil
}

// DeleteRule deletes a rule by ID
func (s *SQLRuleStore) DeleteRule(ctx context.Context, id string) error {
	if id == "" {
		return models.ErrInvalidRuleID
	}

	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM saved_rules WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return expectOneRow(result, id)
}

// EnableRule enables a rule
func (s *SQLRuleStore) EnableRule(ctx context.Context, id string) error {
	return s.setRuleEnabled(ctx, id, true)
}

// DisableRule disables a rule
func (s *SQLRuleStore) DisableRule(ctx context.Context, id string) error {
	return s.setRuleEnabled(ctx, id, false)
}

func (s *SQLRuleStore) setRuleEnabled(ctx context.Context, id string, enabled bool) error {
	if id == "" {
		return models.ErrInvalidRuleID
	}

	query := s.rebind(`UPDATE saved_rules SET enabled = ?, updated_at = ? WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, enabled, time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to set rule enabled=%t: %w", enabled, err)
	}
	return expectOneRow(result, id)
}

// Close closes the database connection
func (s *SQLRuleStore) Close() error {
	return s.db.Close()
}

func expectOneRow(result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrRuleNotFound, id)
	}
	return nil
}
