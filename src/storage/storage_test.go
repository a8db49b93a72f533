package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"trading-console/src/logger"
	"trading-console/src/models"
)

// ============================================================
// SQLite (in-memory)
// ============================================================

func newMemorySQLite(t *testing.T) *SQLiteDB {
	t.Helper()
	cfg := &models.MConfig{}
	cfg.Storage.DBPath = ":memory:"
	db := NewSQLiteDB(cfg, logger.NewNop())
	if err := db.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteUpsertAndLoad(t *testing.T) {
	db := newMemorySQLite(t)

	for _, c := range []models.MCandle{
		{Time: 180, Open: 3, High: 3, Low: 3, Close: 3, Volume: 30},
		{Time: 60, Open: 1, High: 1, Low: 1, Close: 1, Volume: 10},
		{Time: 120, Open: 2, High: 2, Low: 2, Close: 2, Volume: 20},
		{Time: 180, Open: 3, High: 4, Low: 3, Close: 3.5, Volume: 35},
	} {
		if err := db.SaveCandle("TQBR:SBER", "1m", c); err != nil {
			t.Fatalf("SaveCandle(%d) error = %v", c.Time, err)
		}
	}

	all, err := db.LoadCandles("TQBR:SBER", "1m", 0)
	if err != nil {
		t.Fatalf("LoadCandles() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("LoadCandles() returned %d rows, want 3", len(all))
	}
	if all[0].Time != 60 || all[2].Time != 180 {
		t.Errorf("rows not ascending: %+v", all)
	}
	if all[2].Close != 3.5 || all[2].Volume != 35 {
		t.Errorf("upsert did not replace the bar: %+v", all[2])
	}

	recent, err := db.LoadCandles("TQBR:SBER", "1m", 2)
	if err != nil {
		t.Fatalf("LoadCandles(limit) error = %v", err)
	}
	if len(recent) != 2 || recent[0].Time != 120 || recent[1].Time != 180 {
		t.Errorf("LoadCandles(limit 2) = %+v, want the two newest ascending", recent)
	}
}

func TestSQLiteBulkAndListSeries(t *testing.T) {
	db := newMemorySQLite(t)

	err := db.SaveCandlesBulk([]models.MStoredCandle{
		{Instrument: "TQBR:SBER", Timeframe: "1m", Candle: models.MCandle{Time: 60}},
		{Instrument: "TQBR:SBER", Timeframe: "1m", Candle: models.MCandle{Time: 120}},
		{Instrument: "TQBR:GAZP", Timeframe: "5m", Candle: models.MCandle{Time: 300}},
	})
	if err != nil {
		t.Fatalf("SaveCandlesBulk() error = %v", err)
	}
	if err := db.SaveCandlesBulk(nil); err != nil {
		t.Errorf("SaveCandlesBulk(nil) error = %v", err)
	}

	refs, err := db.ListSeries()
	if err != nil {
		t.Fatalf("ListSeries() error = %v", err)
	}
	want := []models.MSeriesRef{
		{Instrument: "TQBR:GAZP", Timeframe: "5m", Count: 1, LastTime: 300},
		{Instrument: "TQBR:SBER", Timeframe: "1m", Count: 2, LastTime: 120},
	}
	if len(refs) != len(want) {
		t.Fatalf("ListSeries() = %+v", refs)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("ListSeries()[%d] = %+v, want %+v", i, refs[i], want[i])
		}
	}
}

func TestSQLiteCleanup(t *testing.T) {
	db := newMemorySQLite(t)
	old := time.Now().AddDate(0, 0, -30).Unix()
	fresh := time.Now().Unix()

	db.SaveCandle("TQBR:SBER", "1m", models.MCandle{Time: old})
	db.SaveCandle("TQBR:SBER", "1m", models.MCandle{Time: fresh})

	if err := db.CleanupOldData(7); err != nil {
		t.Fatalf("CleanupOldData() error = %v", err)
	}
	rows, _ := db.LoadCandles("TQBR:SBER", "1m", 0)
	if len(rows) != 1 || rows[0].Time != fresh {
		t.Errorf("after cleanup = %+v", rows)
	}
}

func TestSQLiteReinitializeKeepsData(t *testing.T) {
	db := newMemorySQLite(t)
	db.SaveCandle("TQBR:SBER", "1m", models.MCandle{Time: 60})

	if err := db.createTables(); err != nil {
		t.Fatalf("createTables() twice error = %v", err)
	}
	if rows, _ := db.LoadCandles("TQBR:SBER", "1m", 0); len(rows) != 1 {
		t.Errorf("schema setup dropped data: %d rows", len(rows))
	}
}

// ============================================================
// Postgres (sqlmock)
// ============================================================

func newMockPostgres(t *testing.T) (*PostgresDB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &PostgresDB{Config: &models.MConfig{}, DB: db, Schema: "tc", Logger: logger.NewNop()}, mock
}

func TestPostgresCreateTables(t *testing.T) {
	d, mock := newMockPostgres(t)

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "tc"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "tc"."candles"`).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := d.createTables(); err != nil {
		t.Fatalf("createTables() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresSaveCandle(t *testing.T) {
	tests := []struct {
		name        string
		execErr     error
		expectError bool
	}{
		{"success", nil, false},
		{"database error", errors.New("connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, mock := newMockPostgres(t)
			exp := mock.ExpectExec(`INSERT INTO "tc"."candles" .+ ON CONFLICT`).
				WithArgs("TQBR:SBER", "1m", int64(60), 1.0, 2.0, 0.5, 1.5, int64(7), sqlmock.AnyArg())
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(1, 1))
			}

			err := d.SaveCandle("TQBR:SBER", "1m", models.MCandle{Time: 60, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 7})
			if (err != nil) != tt.expectError {
				t.Errorf("SaveCandle() error = %v, expectError %v", err, tt.expectError)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestPostgresSaveCandlesBulk(t *testing.T) {
	d, mock := newMockPostgres(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO "tc"."candles"`)
	prep.ExpectExec().WithArgs("TQBR:SBER", "1m", int64(60), 0.0, 0.0, 0.0, 0.0, int64(0), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("TQBR:SBER", "1m", int64(120), 0.0, 0.0, 0.0, 0.0, int64(0), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := d.SaveCandlesBulk([]models.MStoredCandle{
		{Instrument: "TQBR:SBER", Timeframe: "1m", Candle: models.MCandle{Time: 60}},
		{Instrument: "TQBR:SBER", Timeframe: "1m", Candle: models.MCandle{Time: 120}},
	})
	if err != nil {
		t.Fatalf("SaveCandlesBulk() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresLoadCandles(t *testing.T) {
	d, mock := newMockPostgres(t)

	rows := sqlmock.NewRows([]string{"time", "open", "high", "low", "close", "volume"}).
		AddRow(int64(60), 1.0, 1.0, 1.0, 1.0, int64(1)).
		AddRow(int64(120), 2.0, 2.0, 2.0, 2.0, int64(2))
	mock.ExpectQuery(`SELECT \* FROM \(.+FROM "tc"."candles".+LIMIT \$3\) AS recent ORDER BY time ASC`).
		WithArgs("TQBR:SBER", "1m", 2).
		WillReturnRows(rows)

	got, err := d.LoadCandles("TQBR:SBER", "1m", 2)
	if err != nil {
		t.Fatalf("LoadCandles() error = %v", err)
	}
	if len(got) != 2 || got[1].Close != 2 || got[1].Volume != 2 {
		t.Errorf("LoadCandles() = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresListSeries(t *testing.T) {
	d, mock := newMockPostgres(t)

	rows := sqlmock.NewRows([]string{"instrument", "timeframe", "count", "max"}).
		AddRow("TQBR:SBER", "1m", 42, int64(600))
	mock.ExpectQuery(`SELECT instrument, timeframe, COUNT\(\*\), MAX\(time\) FROM "tc"."candles"`).
		WillReturnRows(rows)

	refs, err := d.ListSeries()
	if err != nil {
		t.Fatalf("ListSeries() error = %v", err)
	}
	if len(refs) != 1 || refs[0].Count != 42 || refs[0].LastTime != 600 {
		t.Errorf("ListSeries() = %+v", refs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

// ============================================================
// Factory
// ============================================================

func TestNewRepository(t *testing.T) {
	tests := []struct {
		dbType  string
		wantNil bool
		wantErr bool
	}{
		{"", true, false},
		{"none", true, false},
		{"sqlite", false, false},
		{"postgres", false, false},
		{"mongo", true, true},
	}

	for _, tt := range tests {
		cfg := &models.MConfig{}
		cfg.Storage.DBType = tt.dbType
		repo, err := NewRepository(cfg, logger.NewNop())
		if (err != nil) != tt.wantErr {
			t.Errorf("NewRepository(%q) error = %v", tt.dbType, err)
		}
		if (repo == nil) != tt.wantNil {
			t.Errorf("NewRepository(%q) = %v, wantNil %v", tt.dbType, repo, tt.wantNil)
		}
	}
}

func TestSanitizeIdentifier(t *testing.T) {
	tests := map[string]string{
		"trading-console": "trading_console",
		"Main":            "main",
		"a\"; drop":       "adrop",
		"***":             "trading_console",
	}
	for in, want := range tests {
		if got := sanitizeIdentifier(in); got != want {
			t.Errorf("sanitizeIdentifier(%q) = %q, want %q", in, got, want)
		}
	}
}
