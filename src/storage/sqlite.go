package storage

import (
	"database/sql"
	"fmt"
	"time"

	"trading-console/src/helpers"
	"trading-console/src/logger"
	"trading-console/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteDB(cfg *models.MConfig, log *logger.Logger) *SQLiteDB {
	return &SQLiteDB{
		Config: cfg,
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return helpers.NewDatabaseError("opening sqlite", err)
	}
	// single writer; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return helpers.NewDatabaseError("connecting to sqlite", err)
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS candles (
			instrument TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			time INTEGER NOT NULL,
			open REAL,
			high REAL,
			low REAL,
			close REAL,
			volume INTEGER,
			updated_at INTEGER,
			PRIMARY KEY (instrument, timeframe, time)
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return helpers.NewDatabaseError("creating candles table", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

const sqliteUpsert = `
	INSERT INTO candles (instrument, timeframe, time, open, high, low, close, volume, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (instrument, timeframe, time) DO UPDATE SET
		open = excluded.open,
		high = excluded.high,
		low = excluded.low,
		close = excluded.close,
		volume = excluded.volume,
		updated_at = excluded.updated_at
`

func (d *SQLiteDB) SaveCandle(instrument, timeframe string, c models.MCandle) error {
	_, err := d.DB.Exec(sqliteUpsert, instrument, timeframe, c.Time, c.Open, c.High, c.Low, c.Close, c.Volume, time.Now().Unix())
	if err != nil {
		return helpers.NewDatabaseError("saving candle", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) SaveCandlesBulk(candles []models.MStoredCandle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return helpers.NewDatabaseError("begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(sqliteUpsert)
	if err != nil {
		return helpers.NewDatabaseError("prepare upsert", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, sc := range candles {
		c := sc.Candle
		if _, err := stmt.Exec(sc.Instrument, sc.Timeframe, c.Time, c.Open, c.High, c.Low, c.Close, c.Volume, now); err != nil {
			return helpers.NewDatabaseError(fmt.Sprintf("saving candle %s/%d", sc.Instrument, c.Time), err)
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) LoadCandles(instrument, timeframe string, limit int) ([]models.MCandle, error) {
	// LIMIT -1 means no limit in SQLite
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.DB.Query(`
		SELECT time, open, high, low, close, volume FROM (
			SELECT time, open, high, low, close, volume FROM candles
			WHERE instrument = ? AND timeframe = ?
			ORDER BY time DESC LIMIT ?
		) ORDER BY time ASC
	`, instrument, timeframe, limit)
	if err != nil {
		return nil, helpers.NewDatabaseError("loading candles", err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) ListSeries() ([]models.MSeriesRef, error) {
	rows, err := d.DB.Query(`
		SELECT instrument, timeframe, COUNT(*), MAX(time) FROM candles
		GROUP BY instrument, timeframe
		ORDER BY instrument, timeframe
	`)
	if err != nil {
		return nil, helpers.NewDatabaseError("listing series", err)
	}
	defer rows.Close()
	return scanSeries(rows)
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) CleanupOldData(retentionDays int) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Unix()

	d.Logger.Info("Cleaning up candles older than %d days (time < %d)...", retentionDays, cutoff)
	res, err := d.DB.Exec("DELETE FROM candles WHERE time < ?", cutoff)
	if err != nil {
		return helpers.NewDatabaseError("cleanup", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		d.Logger.Info("Cleanup removed %d candles", n)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
