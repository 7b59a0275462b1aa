package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// schemaLockID: ключ pg_advisory_lock, который сериализует параллельные запуски миграций.
const schemaLockID = int64(0x636b6f7574)

const ensureSchemaTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

var migrationFileRe = regexp.MustCompile(`^(\d+)_(\w+)\.(up|down)\.sql$`)

type migrationDirection string

const (
	migrationUp   migrationDirection = "up"
	migrationDown migrationDirection = "down"
)

type migration struct {
	version int64
	name    string
	up      string
	down    string
}

// ID: имя миграции в виде NNNN_name, как у файлов.
func (m migration) ID() string {
	return fmt.Sprintf("%04d_%s", m.version, m.name)
}

// migrationSet упорядочен по возрастанию версии.
type migrationSet []migration

func (s migrationSet) pending(applied map[int64]bool) []string {
	var names []string
	for _, m := range s {
		if !applied[m.version] {
			names = append(names, m.ID())
		}
	}
	return names
}

func (s migrationSet) find(version int64) (migration, bool) {
	i, ok := slices.BinarySearchFunc(s, version, func(m migration, v int64) int {
		return cmp.Compare(m.version, v)
	})
	if !ok {
		return migration{}, false
	}
	return s[i], true
}

// MigrateUp применяет не больше steps миграций; steps=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationUp, steps)
}

// MigrateDown откатывает steps последних миграций, по умолчанию одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationDown, max(steps, 1))
}

// MigrationStatus возвращает максимальную применённую версию и число применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, errStoreNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, ensureSchemaTableSQL); err != nil {
		return 0, 0, fmt.Errorf("ensure migration table: %w", err)
	}

	var (
		version int64
		count   int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0), COUNT(*) FROM schema_migrations`,
	).Scan(&version, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("query migration status: %w", err)
	}
	return version, count, nil
}

// PendingMigrations перечисляет неприменённые миграции в порядке применения.
func (s *Store) PendingMigrations(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errStoreNotInitialized
	}

	set, err := readMigrations(migrationsFS)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, ensureSchemaTableSQL); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := appliedVersions(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return set.pending(applied), nil
}

func (s *Store) migrate(ctx context.Context, direction migrationDirection, steps int) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	if direction != migrationUp && direction != migrationDown {
		return fmt.Errorf("unsupported migration direction: %s", direction)
	}

	set, err := readMigrations(migrationsFS)
	if err != nil {
		return err
	}

	return s.withSchemaLock(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, ensureSchemaTableSQL); err != nil {
			return fmt.Errorf("ensure migration table: %w", err)
		}
		plan, err := planMigrations(ctx, conn, set, direction, steps)
		if err != nil {
			return err
		}
		for _, m := range plan {
			if err := runMigration(ctx, conn, m, direction); err != nil {
				return err
			}
		}
		return nil
	})
}

// withSchemaLock держит advisory lock на выделенном соединении, пока выполняется fn.
func (s *Store) withSchemaLock(ctx context.Context, fn func(*sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, `SELECT pg_advisory_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, schemaLockID)
	}()

	return fn(conn)
}

// planMigrations выбирает миграции для применения: для up по возрастанию версии,
// для down по убыванию среди уже применённых.
func planMigrations(
	ctx context.Context,
	conn *sql.Conn,
	set migrationSet,
	direction migrationDirection,
	steps int,
) ([]migration, error) {
	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return nil, err
	}

	var plan []migration
	if direction == migrationUp {
		for _, m := range set {
			if steps > 0 && len(plan) == steps {
				break
			}
			if !applied[m.version] {
				plan = append(plan, m)
			}
		}
		return plan, nil
	}

	versions := make([]int64, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	slices.Sort(versions)
	slices.Reverse(versions)

	for _, v := range versions {
		if len(plan) == steps {
			break
		}
		m, ok := set.find(v)
		if !ok {
			return nil, fmt.Errorf("cannot rollback unknown migration version %d", v)
		}
		plan = append(plan, m)
	}
	return plan, nil
}

// runMigration выполняет тело миграции и запись в schema_migrations в одной транзакции.
func runMigration(ctx context.Context, conn *sql.Conn, m migration, direction migrationDirection) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s migration %s: %w", direction, m.ID(), err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	body, bookkeeping, args := m.up, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, []any{m.version, m.name}
	if direction == migrationDown {
		body, bookkeeping, args = m.down, `DELETE FROM schema_migrations WHERE version = $1`, []any{m.version}
	}

	if _, err = tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("execute %s migration %s: %w", direction, m.ID(), err)
	}
	if _, err = tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return fmt.Errorf("record %s migration %s: %w", direction, m.ID(), err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %s: %w", direction, m.ID(), err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func appliedVersions(ctx context.Context, q queryer) (map[int64]bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

// readMigrations собирает пары up/down из sql/migrations. У каждой версии
// должны быть оба файла с одинаковым именем и непустым телом.
func readMigrations(fsys fs.FS) (migrationSet, error) {
	files, err := fs.Glob(fsys, "sql/migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	byVersion := make(map[int64]*migration)
	for _, file := range files {
		base := path.Base(file)
		parts := migrationFileRe.FindStringSubmatch(base)
		if parts == nil {
			return nil, fmt.Errorf("invalid migration file name: %s", base)
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version from %s: %w", base, err)
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{version: version, name: parts[2]}
			byVersion[version] = m
		}
		if m.name != parts[2] {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, m.name, parts[2])
		}

		target := &m.up
		if parts[3] == string(migrationDown) {
			target = &m.down
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", parts[3], version)
		}
		*target = body
	}

	set := make(migrationSet, 0, len(byVersion))
	for _, m := range byVersion {
		if m.up == "" || m.down == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m.ID())
		}
		set = append(set, *m)
	}
	slices.SortFunc(set, func(a, b migration) int { return cmp.Compare(a.version, b.version) })
	return set, nil
}
