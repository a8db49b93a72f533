package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"trading-console/src/helpers"
	"trading-console/src/logger"
	"trading-console/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

// NewPostgresDB keeps its tables in a schema named after the running executable
func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	return &PostgresDB{
		Config: cfg,
		Schema: sanitizeIdentifier(name),
		Logger: log,
	}, nil
}

// sanitizeIdentifier keeps letters, digits and underscores
func sanitizeIdentifier(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '-' || r == '.':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "trading_console"
	}
	return b.String()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	db, err := sql.Open("postgres", d.Config.Storage.DBConnectionString)
	if err != nil {
		return helpers.NewDatabaseError("opening postgres", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return helpers.NewDatabaseError("connecting to postgres", err)
	}

	d.DB = db
	if err := d.createTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) table() string {
	return fmt.Sprintf(`"%s"."candles"`, d.Schema)
}

func (d *PostgresDB) createTables() error {
	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return helpers.NewDatabaseError(fmt.Sprintf("creating schema %s", d.Schema), err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			instrument TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			time BIGINT NOT NULL,
			open DOUBLE PRECISION,
			high DOUBLE PRECISION,
			low DOUBLE PRECISION,
			close DOUBLE PRECISION,
			volume BIGINT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (instrument, timeframe, time)
		);
	`, d.table())
	if _, err := d.DB.Exec(query); err != nil {
		return helpers.NewDatabaseError("creating candles table", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) upsertQuery() string {
	return fmt.Sprintf(`
		INSERT INTO %s (instrument, timeframe, time, open, high, low, close, volume, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (instrument, timeframe, time) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			updated_at = EXCLUDED.updated_at
	`, d.table())
}

func (d *PostgresDB) SaveCandle(instrument, timeframe string, c models.MCandle) error {
	_, err := d.DB.Exec(d.upsertQuery(), instrument, timeframe, c.Time, c.Open, c.High, c.Low, c.Close, c.Volume, time.Now().UTC())
	if err != nil {
		return helpers.NewDatabaseError("saving candle", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveCandlesBulk(candles []models.MStoredCandle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return helpers.NewDatabaseError("begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(d.upsertQuery())
	if err != nil {
		return helpers.NewDatabaseError("prepare upsert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, sc := range candles {
		c := sc.Candle
		if _, err := stmt.Exec(sc.Instrument, sc.Timeframe, c.Time, c.Open, c.High, c.Low, c.Close, c.Volume, now); err != nil {
			return helpers.NewDatabaseError(fmt.Sprintf("saving candle %s/%d", sc.Instrument, c.Time), err)
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) LoadCandles(instrument, timeframe string, limit int) ([]models.MCandle, error) {
	inner := fmt.Sprintf(`
		SELECT time, open, high, low, close, volume FROM %s
		WHERE instrument = $1 AND timeframe = $2
		ORDER BY time DESC`, d.table())

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = d.DB.Query(fmt.Sprintf(`SELECT * FROM (%s LIMIT $3) AS recent ORDER BY time ASC`, inner), instrument, timeframe, limit)
	} else {
		rows, err = d.DB.Query(fmt.Sprintf(`SELECT * FROM (%s) AS recent ORDER BY time ASC`, inner), instrument, timeframe)
	}
	if err != nil {
		return nil, helpers.NewDatabaseError("loading candles", err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) ListSeries() ([]models.MSeriesRef, error) {
	rows, err := d.DB.Query(fmt.Sprintf(`
		SELECT instrument, timeframe, COUNT(*), MAX(time) FROM %s
		GROUP BY instrument, timeframe
		ORDER BY instrument, timeframe
	`, d.table()))
	if err != nil {
		return nil, helpers.NewDatabaseError("listing series", err)
	}
	defer rows.Close()
	return scanSeries(rows)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) CleanupOldData(retentionDays int) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Unix()

	d.Logger.Info("Cleaning up candles older than %d days (time < %d)...", retentionDays, cutoff)
	if _, err := d.DB.Exec(fmt.Sprintf(`DELETE FROM %s WHERE time < $1`, d.table()), cutoff); err != nil {
		return helpers.NewDatabaseError("cleanup", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
