// Package store keeps templates in a Postgres table so they can be shared
// between tagfill instances and registered next to the scanned files.
package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"hash/crc32"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/logging"
	"github.com/conneroisu/tagfill/internal/markup"
	"github.com/conneroisu/tagfill/internal/registry"
	"github.com/conneroisu/tagfill/internal/validation"
)

// ErrNotFound is returned when no row exists for a template id.
var ErrNotFound = stderrors.New("template not found in store")

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Template is one stored row. Markup is either a complete
// <template id="..."> element or the template's content alone.
type Template struct {
	ID        string
	Markup    string
	UpdatedAt time.Time
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// TemplateStore reads and writes templates in a single table.
type TemplateStore struct {
	db     DB
	pool   *pgxpool.Pool
	table  string
	logger logging.Logger
}

// NewPool connects to databaseURL and pings it before returning.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid, "parse database url")
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeStoreUnavailable, "connect to template store", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.NewIOError(errors.ErrCodeStoreUnavailable, "ping template store", err)
	}
	return pool, nil
}

// Open connects to databaseURL and returns a store over table. The store
// owns the pool and closes it in Close.
func Open(ctx context.Context, databaseURL, table string, logger logging.Logger) (*TemplateStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("invalid table name %q", table))
	}
	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	s, _ := New(pool, table, logger)
	s.pool = pool
	return s, nil
}

// New returns a store over an existing connection.
func New(db DB, table string, logger logging.Logger) (*TemplateStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("invalid table name %q", table))
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &TemplateStore{
		db:     db,
		table:  pgx.Identifier{table}.Sanitize(),
		logger: logger.WithComponent("store"),
	}, nil
}

// Close releases the pool opened by Open. It is a no-op for stores built
// with New.
func (s *TemplateStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the table when it does not exist.
func (s *TemplateStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			id         TEXT PRIMARY KEY,
			markup     TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create template table: %w", err)
	}
	return nil
}

// List returns every stored template ordered by id.
func (s *TemplateStore) List(ctx context.Context) ([]Template, error) {
	query := `
		SELECT id, markup, updated_at
		FROM ` + s.table + `
		ORDER BY id
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.Markup, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// Get returns the template stored under id.
func (s *TemplateStore) Get(ctx context.Context, id string) (*Template, error) {
	query := `
		SELECT id, markup, updated_at
		FROM ` + s.table + `
		WHERE id = $1
	`
	var t Template
	err := s.db.QueryRow(ctx, query, id).Scan(&t.ID, &t.Markup, &t.UpdatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}
	return &t, nil
}

// Save inserts or replaces the markup stored under id. The markup must
// parse and the id must be a valid template id.
func (s *TemplateStore) Save(ctx context.Context, id, content string) error {
	if err := validation.ValidateTemplateID(id); err != nil {
		return err
	}
	if _, err := templateRoot(id, content); err != nil {
		return err
	}

	query := `
		INSERT INTO ` + s.table + ` (id, markup, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE
		SET markup = EXCLUDED.markup, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.Exec(ctx, query, id, content); err != nil {
		return fmt.Errorf("save template %s: %w", id, err)
	}
	s.logger.Debug(ctx, "Template saved", "template", id)
	return nil
}

// Delete removes the row for id.
func (s *TemplateStore) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM ` + s.table + ` WHERE id = $1`
	result, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadInto registers every stored template in reg and returns how many were
// registered. Templates already loaded from files keep precedence.
func (s *TemplateStore) LoadInto(ctx context.Context, reg *registry.TemplateRegistry) (int, error) {
	templates, err := s.List(ctx)
	if err != nil {
		return 0, errors.NewIOError(errors.ErrCodeStoreUnavailable, "load templates from store", err)
	}
	return Register(ctx, reg, templates, s.logger)
}

// Register parses templates and adds them to reg with SourceStore. A
// template whose id is already registered from a file is skipped. Stored
// templates that are no longer present are removed.
func Register(ctx context.Context, reg *registry.TemplateRegistry, templates []Template, logger logging.Logger) (int, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	collector := errors.NewErrorCollector()
	present := make(map[string]bool, len(templates))
	registered := 0
	for _, t := range templates {
		present[t.ID] = true
		if existing, ok := reg.Get(t.ID); ok && existing.Source != registry.SourceStore {
			logger.Warn(ctx, nil, "Stored template shadowed by file", "template", t.ID, "file", existing.FilePath)
			continue
		}
		root, err := templateRoot(t.ID, t.Markup)
		if err != nil {
			collector.Add(errors.ProblemFromError(t.ID, "", err))
			continue
		}
		reg.Register(&registry.TemplateInfo{
			ID:      t.ID,
			Source:  registry.SourceStore,
			Root:    root,
			Hash:    fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte(t.Markup))),
			LastMod: t.UpdatedAt,
		})
		registered++
	}

	for _, info := range reg.GetAll() {
		if info.Source == registry.SourceStore && !present[info.ID] {
			reg.Remove(info.ID)
		}
	}

	if collector.HasErrors() {
		return registered, fmt.Errorf("%d stored templates failed to load: %w",
			collector.Count(), stderrors.Join(collector.GetAllErrors()...))
	}
	return registered, nil
}

// templateRoot parses stored markup into a template element with the given
// id. Markup holding a <template> with that id is used as is; anything else
// becomes the content of a new template element.
func templateRoot(id, content string) (*markup.Node, error) {
	if err := validation.ValidateTemplateID(id); err != nil {
		return nil, err
	}
	doc, err := markup.ParseString(content)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.ErrCodeInvalidTemplate, "parsing stored markup").
			WithTemplate(id)
	}
	for _, el := range doc.FindAll("template") {
		if got, ok := el.Attr("id"); ok && got == id {
			return el, nil
		}
	}
	return markup.NewElement("template", []markup.Attribute{{Key: "id", Val: id}}, doc.Children...), nil
}
