package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/repository"
	"github.com/sirupsen/logrus"
)

// rebuildPrefix names the copy of a table while its definition is replaced
const rebuildPrefix = "_vk_rebuild_"

type dataStore struct {
	db  *DB
	log logrus.FieldLogger
}

func NewDataStore(db *DB, log logrus.FieldLogger) repository.DataStore {
	return &dataStore{db: db, log: log}
}

type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

type tableDef struct {
	name   string
	schema string
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// storedValues selects columns as expressions so the driver returns each
// value in its storage class instead of converting by declared type
func storedValues(names []string) string {
	exprs := make([]string, len(names))
	for i, n := range names {
		col := quoteIdent(n)
		exprs[i] = fmt.Sprintf("CASE WHEN typeof(%s) = 'text' THEN CAST(%s AS TEXT) ELSE %s END", col, col, col)
	}
	return strings.Join(exprs, ", ")
}

// normalizeSQL collapses whitespace so cosmetic differences do not count as drift
func normalizeSQL(stmt string) string {
	return strings.Join(strings.Fields(stmt), " ")
}

// userTables lists application tables, skipping internal and sqlite_ tables
func userTables(ctx context.Context, q queryer) ([]tableDef, error) {
	rows, err := q.QueryxContext(ctx, `
		SELECT name, sql FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []tableDef
	for rows.Next() {
		var t tableDef
		if err := rows.Scan(&t.name, &t.schema); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		if InternalTables[t.name] || strings.HasPrefix(t.name, rebuildPrefix) {
			continue
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func tableColumns(ctx context.Context, q queryer, table string) ([]string, error) {
	rows, err := q.QueryxContext(ctx, `SELECT name FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

type schemaObject struct {
	kind string
	name string
	sql  string
}

// tableObjects returns the explicit indexes and triggers of a table
func tableObjects(ctx context.Context, q queryer, table string) ([]schemaObject, error) {
	rows, err := q.QueryxContext(ctx, `
		SELECT type, name, sql FROM sqlite_master
		WHERE tbl_name = ? AND type IN ('index', 'trigger') AND sql IS NOT NULL
		ORDER BY type, name
	`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read indexes of %s: %w", table, err)
	}
	defer rows.Close()

	var objects []schemaObject
	for rows.Next() {
		var o schemaObject
		if err := rows.Scan(&o.kind, &o.name, &o.sql); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		objects = append(objects, o)
	}
	return objects, rows.Err()
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func (s *dataStore) Snapshot(ctx context.Context, opts domain.SnapshotOptions) (*domain.Snapshot, error) {
	// A transaction gives every table the same read snapshot
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	tables, err := userTables(ctx, tx)
	if err != nil {
		return nil, err
	}

	snapshot := &domain.Snapshot{
		FormatVersion: domain.SnapshotFormatVersion,
		Type:          opts.Type,
		CreatedAt:     time.Now().UTC(),
		Since:         opts.Since,
	}

	for _, t := range tables {
		isLedger := t.name == LedgerTable

		// The ledger only travels with schema bearing snapshots
		if isLedger && (opts.Type == domain.BackupTypeDataOnly || opts.Type == domain.BackupTypeIncremental) {
			continue
		}

		columns, err := tableColumns(ctx, tx, t.name)
		if err != nil {
			return nil, err
		}

		var filter string
		var args []interface{}
		if opts.Type == domain.BackupTypeIncremental {
			if !contains(columns, opts.ChangeColumn) {
				snapshot.Skipped = append(snapshot.Skipped, t.name)
				s.log.WithFields(logrus.Fields{"table": t.name, "column": opts.ChangeColumn}).
					Debug("Skipping table without change column")
				continue
			}
			if opts.Since != nil {
				filter = fmt.Sprintf(" WHERE datetime(%s) >= datetime(?)", quoteIdent(opts.ChangeColumn))
				args = append(args, opts.Since.UTC().Format("2006-01-02 15:04:05"))
			}
		}

		table := domain.TableSnapshot{Name: t.name, Columns: columns}

		if opts.Type.HasSchema() {
			table.Schema = t.schema
			objects, err := tableObjects(ctx, tx, t.name)
			if err != nil {
				return nil, err
			}
			for _, o := range objects {
				table.Indexes = append(table.Indexes, o.sql)
			}
		}

		if opts.Type.HasData() || isLedger {
			query := fmt.Sprintf("SELECT %s FROM %s%s", storedValues(columns), quoteIdent(t.name), filter)
			if table.Rows, err = dumpRows(ctx, tx, query, args...); err != nil {
				return nil, fmt.Errorf("failed to dump %s: %w", t.name, err)
			}
		}

		snapshot.Tables = append(snapshot.Tables, table)
	}

	return snapshot, nil
}

func dumpRows(ctx context.Context, q queryer, query string, args ...interface{}) ([][]interface{}, error) {
	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := [][]interface{}{}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		result = append(result, values)
	}
	return result, rows.Err()
}

// applier runs each table change in its own transaction on one connection
// and remembers which tables were already committed
type applier struct {
	conn   *sqlx.Conn
	log    logrus.FieldLogger
	result *domain.RestoreResult
}

func (a *applier) table(ctx context.Context, name string, fn func(tx *sqlx.Tx) error) error {
	tx, err := a.conn.BeginTxx(ctx, nil)
	if err != nil {
		return a.fail(name, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return a.fail(name, err)
	}
	if err := tx.Commit(); err != nil {
		return a.fail(name, err)
	}
	if !contains(a.result.Applied, name) {
		a.result.Applied = append(a.result.Applied, name)
	}
	a.log.WithField("table", name).Debug("Restored table")
	return nil
}

func (a *applier) skip(name string) {
	if !contains(a.result.Skipped, name) {
		a.result.Skipped = append(a.result.Skipped, name)
	}
}

func (a *applier) fail(table string, err error) error {
	if len(a.result.Applied) == 0 {
		return domain.NewStoreError(fmt.Sprintf("failed to restore table %s", table), err)
	}
	applied := make([]string, len(a.result.Applied))
	copy(applied, a.result.Applied)
	return domain.NewPartialFailure(applied, table, err)
}

func (s *dataStore) Apply(ctx context.Context, plan domain.RestorePlan) (*domain.RestoreResult, error) {
	result := &domain.RestoreResult{}
	if len(plan.Chain) == 0 {
		return result, fmt.Errorf("restore plan has no snapshot")
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return result, domain.NewStoreError("failed to acquire connection", err)
	}
	defer conn.Close()

	// Tables are rebuilt in arbitrary order, and a renamed table must keep
	// the references other tables hold to its name
	for _, pragma := range []string{"PRAGMA foreign_keys = OFF", "PRAGMA legacy_alter_table = ON"} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			return result, domain.NewStoreError("failed to prepare connection", err)
		}
	}
	defer func() {
		for _, pragma := range []string{"PRAGMA legacy_alter_table = OFF", "PRAGMA foreign_keys = ON"} {
			if _, err := conn.ExecContext(context.Background(), pragma); err != nil {
				s.log.WithError(err).Warn("Failed to reset connection pragma")
			}
		}
	}()

	a := &applier{conn: conn, log: s.log, result: result}
	base := plan.Chain[0]
	links := plan.Chain[1:]

	switch {
	case base.Type == domain.BackupTypeIncremental:
		// An incremental taken without a baseline only carries changed rows,
		// so all of it is upserted on top of the live tables
		if !plan.RestoreType.RestoresData() {
			return result, domain.NewValidationError("incremental backups cannot feed a schema restore", nil)
		}
		links = plan.Chain
	case plan.RestoreType == domain.RestoreTypeFull:
		err = s.restoreFull(ctx, a, base)
	case plan.RestoreType == domain.RestoreTypeSchemaOnly:
		err = s.restoreSchema(ctx, a, base)
	case plan.RestoreType == domain.RestoreTypeDataOnly:
		err = s.restoreData(ctx, a, base, nil)
	case plan.RestoreType == domain.RestoreTypeSelective:
		err = s.restoreData(ctx, a, base, plan.Tables)
	default:
		err = domain.NewValidationError(fmt.Sprintf("unknown restore type: %s", plan.RestoreType), nil)
	}
	if err != nil {
		return result, err
	}

	if plan.RestoreType.RestoresData() {
		for _, link := range links {
			if err := s.upsert(ctx, a, link, plan.Tables); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}

func (s *dataStore) restoreFull(ctx context.Context, a *applier, snap *domain.Snapshot) error {
	live, err := userTables(ctx, a.conn)
	if err != nil {
		return domain.NewStoreError("failed to read live tables", err)
	}

	for _, t := range live {
		if snap.Table(t.name) != nil {
			continue
		}
		err := a.table(ctx, t.name, func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, "DROP TABLE "+quoteIdent(t.name))
			return err
		})
		if err != nil {
			return err
		}
	}

	for i := range snap.Tables {
		table := &snap.Tables[i]
		err := a.table(ctx, table.Name, func(tx *sqlx.Tx) error {
			return recreateTable(ctx, tx, table)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// recreateTable drops the live table and builds it from the snapshot
func recreateTable(ctx context.Context, tx *sqlx.Tx, table *domain.TableSnapshot) error {
	if table.Schema == "" {
		return fmt.Errorf("backup carries no definition for table %s", table.Name)
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table.Name)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, table.Schema); err != nil {
		return err
	}
	if err := insertRows(ctx, tx, "INSERT", table.Name, table.Columns, table.Rows); err != nil {
		return err
	}
	return createObjects(ctx, tx, table.Indexes)
}

func createObjects(ctx context.Context, tx *sqlx.Tx, statements []string) error {
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *dataStore) restoreSchema(ctx context.Context, a *applier, snap *domain.Snapshot) error {
	live, err := userTables(ctx, a.conn)
	if err != nil {
		return domain.NewStoreError("failed to read live tables", err)
	}
	liveSchema := make(map[string]string, len(live))
	for _, t := range live {
		liveSchema[t.name] = t.schema
	}

	for _, t := range live {
		if snap.Table(t.name) != nil {
			continue
		}
		err := a.table(ctx, t.name, func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, "DROP TABLE "+quoteIdent(t.name))
			return err
		})
		if err != nil {
			return err
		}
	}

	for i := range snap.Tables {
		table := &snap.Tables[i]
		current, exists := liveSchema[table.Name]

		var fn func(tx *sqlx.Tx) error
		switch {
		case table.Name == LedgerTable || !exists:
			// The ledger is replaced together with the schema it describes
			fn = func(tx *sqlx.Tx) error { return recreateTable(ctx, tx, table) }
		case normalizeSQL(current) != normalizeSQL(table.Schema):
			fn = func(tx *sqlx.Tx) error { return rebuildTable(ctx, tx, table) }
		default:
			fn = func(tx *sqlx.Tx) error { return syncObjects(ctx, tx, table) }
		}

		if err := a.table(ctx, table.Name, fn); err != nil {
			return err
		}
	}
	return nil
}

// rebuildTable replaces a table definition and keeps the data of the
// columns both definitions share
func rebuildTable(ctx context.Context, tx *sqlx.Tx, table *domain.TableSnapshot) error {
	oldColumns, err := tableColumns(ctx, tx, table.Name)
	if err != nil {
		return err
	}
	tmp := rebuildPrefix + table.Name

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(table.Name), quoteIdent(tmp))); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, table.Schema); err != nil {
		return err
	}

	newColumns, err := tableColumns(ctx, tx, table.Name)
	if err != nil {
		return err
	}
	var common []string
	for _, c := range newColumns {
		if contains(oldColumns, c) {
			common = append(common, c)
		}
	}
	if len(common) > 0 {
		cols := quoteIdents(common)
		copyStmt := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", quoteIdent(table.Name), cols, cols, quoteIdent(tmp))
		if _, err := tx.ExecContext(ctx, copyStmt); err != nil {
			return err
		}
	}

	// Dropping the old copy also drops its indexes, freeing their names
	if _, err := tx.ExecContext(ctx, "DROP TABLE "+quoteIdent(tmp)); err != nil {
		return err
	}
	return createObjects(ctx, tx, table.Indexes)
}

// syncObjects makes the indexes and triggers of a table match the snapshot
func syncObjects(ctx context.Context, tx *sqlx.Tx, table *domain.TableSnapshot) error {
	objects, err := tableObjects(ctx, tx, table.Name)
	if err != nil {
		return err
	}

	wanted := make(map[string]bool, len(table.Indexes))
	for _, stmt := range table.Indexes {
		wanted[normalizeSQL(stmt)] = true
	}

	present := make(map[string]bool, len(objects))
	for _, o := range objects {
		key := normalizeSQL(o.sql)
		if wanted[key] {
			present[key] = true
			continue
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP %s %s", strings.ToUpper(o.kind), quoteIdent(o.name))); err != nil {
			return err
		}
	}

	for _, stmt := range table.Indexes {
		if present[normalizeSQL(stmt)] {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *dataStore) restoreData(ctx context.Context, a *applier, snap *domain.Snapshot, selected []string) error {
	for i := range snap.Tables {
		table := &snap.Tables[i]
		if table.Name == LedgerTable {
			continue
		}
		if selected != nil && !contains(selected, table.Name) {
			continue
		}

		liveColumns, err := tableColumns(ctx, a.conn, table.Name)
		if err != nil {
			return domain.NewStoreError("failed to read live columns", err)
		}

		if len(liveColumns) == 0 {
			// A selective restore may bring back a table that was dropped
			if selected != nil && table.Schema != "" {
				if err := a.table(ctx, table.Name, func(tx *sqlx.Tx) error {
					return recreateTable(ctx, tx, table)
				}); err != nil {
					return err
				}
				continue
			}
			a.skip(table.Name)
			continue
		}

		columns, rows := projectRows(table, liveColumns)
		if len(columns) == 0 {
			a.skip(table.Name)
			continue
		}

		err = a.table(ctx, table.Name, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+quoteIdent(table.Name)); err != nil {
				return err
			}
			return insertRows(ctx, tx, "INSERT", table.Name, columns, rows)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// upsert applies an incremental link on top of the restored baseline
func (s *dataStore) upsert(ctx context.Context, a *applier, snap *domain.Snapshot, selected []string) error {
	for i := range snap.Tables {
		table := &snap.Tables[i]
		if table.Name == LedgerTable || len(table.Rows) == 0 {
			continue
		}
		if selected != nil && !contains(selected, table.Name) {
			continue
		}

		liveColumns, err := tableColumns(ctx, a.conn, table.Name)
		if err != nil {
			return domain.NewStoreError("failed to read live columns", err)
		}
		columns, rows := projectRows(table, liveColumns)
		if len(columns) == 0 {
			a.skip(table.Name)
			continue
		}

		err = a.table(ctx, table.Name, func(tx *sqlx.Tx) error {
			return insertRows(ctx, tx, "INSERT OR REPLACE", table.Name, columns, rows)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// projectRows keeps only the columns that exist in the live table
func projectRows(table *domain.TableSnapshot, liveColumns []string) ([]string, [][]interface{}) {
	var columns []string
	var positions []int
	for i, c := range table.Columns {
		if contains(liveColumns, c) {
			columns = append(columns, c)
			positions = append(positions, i)
		}
	}
	if len(columns) == len(table.Columns) {
		return columns, table.Rows
	}

	rows := make([][]interface{}, len(table.Rows))
	for r, row := range table.Rows {
		projected := make([]interface{}, len(positions))
		for i, p := range positions {
			if p < len(row) {
				projected[i] = row[p]
			}
		}
		rows[r] = projected
	}
	return columns, rows
}

func insertRows(ctx context.Context, tx *sqlx.Tx, verb, table string, columns []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf("%s INTO %s (%s) VALUES (%s)", verb, quoteIdent(table), quoteIdents(columns), placeholders)

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("row of %s has %d values, expected %d", table, len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return err
		}
	}
	return nil
}

// ScratchTargets opens scratch databases under dir for restores that must
// not touch the live store. The returned close func releases the database.
func ScratchTargets(dir string, log logrus.FieldLogger) func(name string) (repository.DataStore, func() error, error) {
	return func(name string) (repository.DataStore, func() error, error) {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create restore directory: %w", err)
		}
		db, err := Open(filepath.Join(dir, name+".sqlite3"), Options{SkipSchema: true})
		if err != nil {
			return nil, nil, err
		}
		return NewDataStore(db, log.WithField("target", name)), db.Close, nil
	}
}
