package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres migrate driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/YumeNoTenshi/ecoscan/internal/history/migrations"
	"github.com/YumeNoTenshi/ecoscan/internal/models"
)

// Connect opens a connection pool to PostgreSQL and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(dsn string) error {
	src, err := iofs.New(migrations.Files, ".")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate new: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	slog.Info("history migrations applied")
	return nil
}

// PostgresStore persists history records to PostgreSQL. Metrics and the
// saved configuration are stored as JSONB documents.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, rec models.HistoryRecord) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return fmt.Errorf("invalid record id %q: %w", rec.ID, err)
	}
	baseline, err := json.Marshal(rec.BaselineMetrics)
	if err != nil {
		return fmt.Errorf("encode baseline metrics: %w", err)
	}
	current, err := json.Marshal(rec.CurrentMetrics)
	if err != nil {
		return fmt.Errorf("encode current metrics: %w", err)
	}
	cfg, err := json.Marshal(rec.ConfigAtSave.Clone())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, queryInsertRecord,
		id, rec.Name, rec.CreatedDate.UTC(), baseline, current, cfg, rec.SavingsEuro, rec.CarbonOffsetPercent,
	); err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, queryListRecords)
	if err != nil {
		return nil, fmt.Errorf("list history records: %w", err)
	}
	defer rows.Close()

	out := []models.HistoryRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (models.HistoryRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.HistoryRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec, err := scanRecord(s.db.QueryRowContext(ctx, queryGetRecord, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.HistoryRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

func (s *PostgresStore) Rename(ctx context.Context, id, name string) (models.HistoryRecord, error) {
	name, err := cleanName(name)
	if err != nil {
		return models.HistoryRecord{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return models.HistoryRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec, err := scanRecord(s.db.QueryRowContext(ctx, queryRenameRecord, id, name))
	if errors.Is(err, sql.ErrNoRows) {
		return models.HistoryRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (models.HistoryRecord, error) {
	var (
		rec                        models.HistoryRecord
		baseline, current, cfgJSON []byte
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.CreatedDate, &baseline, &current, &cfgJSON,
		&rec.SavingsEuro, &rec.CarbonOffsetPercent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan history record: %w", err)
	}
	if err := json.Unmarshal(baseline, &rec.BaselineMetrics); err != nil {
		return rec, fmt.Errorf("decode baseline metrics: %w", err)
	}
	if err := json.Unmarshal(current, &rec.CurrentMetrics); err != nil {
		return rec, fmt.Errorf("decode current metrics: %w", err)
	}
	if err := json.Unmarshal(cfgJSON, &rec.ConfigAtSave); err != nil {
		return rec, fmt.Errorf("decode config: %w", err)
	}
	rec.ConfigAtSave = rec.ConfigAtSave.Clone()
	rec.CreatedDate = rec.CreatedDate.UTC()
	return rec, nil
}
