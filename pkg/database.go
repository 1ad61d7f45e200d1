package calocell

import (
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
	_ "github.com/mattn/go-sqlite3"
)

func ConnectToDatabase(user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	port := "3306"
	dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
	db, err := sqlx.Connect("mysql", dbURI)
	return db, err
}

// ConnectToSQLite opens a local geometry file. ":memory:" gives a private
// in-memory database.
func ConnectToSQLite(filename string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", filename)
	if err != nil {
		return nil, err
	}
	if filename == ":memory:" {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Connect opens the geometry database selected by the configuration.
func Connect(config Configuration) (*sqlx.DB, error) {
	switch config.DBDriver {
	case "sqlite3":
		return ConnectToSQLite(config.DBFile)
	case "mysql":
		return ConnectToDatabase(config.User, config.Passwd, config.Host, config.DBName)
	default:
		return nil, fmt.Errorf("unknown database driver %q", config.DBDriver)
	}
}

const geometrySchema = `CREATE TABLE IF NOT EXISTS CaloCells (
	Hash INTEGER NOT NULL,
	Eta DOUBLE NOT NULL,
	Phi DOUBLE NOT NULL,
	DeltaEta DOUBLE NOT NULL,
	DeltaPhi DOUBLE NOT NULL,
	Sampling INTEGER NOT NULL,
	Detector INTEGER NOT NULL,
	RMin DOUBLE NOT NULL,
	RMax DOUBLE NOT NULL,
	BcidStart INTEGER NOT NULL,
	BcidEnd INTEGER NOT NULL,
	BcDuration DOUBLE NOT NULL,
	Noise DOUBLE NOT NULL,
	OFCa TEXT NOT NULL,
	OFCb TEXT NOT NULL,
	MinRun INTEGER NOT NULL,
	MaxRun INTEGER NOT NULL
)`

type CellEntry struct {
	Hash       int64   `db:"Hash"`
	Eta        float64 `db:"Eta"`
	Phi        float64 `db:"Phi"`
	DeltaEta   float64 `db:"DeltaEta"`
	DeltaPhi   float64 `db:"DeltaPhi"`
	Sampling   int     `db:"Sampling"`
	Detector   int     `db:"Detector"`
	RMin       float64 `db:"RMin"`
	RMax       float64 `db:"RMax"`
	BcidStart  int     `db:"BcidStart"`
	BcidEnd    int     `db:"BcidEnd"`
	BcDuration float64 `db:"BcDuration"`
	Noise      float64 `db:"Noise"`
	OFCa       string  `db:"OFCa"`
	OFCb       string  `db:"OFCb"`
	MinRun     int     `db:"MinRun"`
	MaxRun     int     `db:"MaxRun"`
}

// CreateGeometryTable creates the CaloCells table if it does not exist.
func CreateGeometryTable(db *sqlx.DB) error {
	if _, err := db.Exec(geometrySchema); err != nil {
		return &ErrCreateTable{TableName: "CaloCells", Err: err}
	}
	return nil
}

// StoreGeometry inserts cells valid for runs in [minRun, maxRun].
func StoreGeometry(db *sqlx.DB, cells []*Cell, minRun, maxRun int) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	query := `INSERT INTO CaloCells (Hash, Eta, Phi, DeltaEta, DeltaPhi, Sampling, Detector,
		RMin, RMax, BcidStart, BcidEnd, BcDuration, Noise, OFCa, OFCb, MinRun, MaxRun)
		VALUES (:Hash, :Eta, :Phi, :DeltaEta, :DeltaPhi, :Sampling, :Detector,
		:RMin, :RMax, :BcidStart, :BcidEnd, :BcDuration, :Noise, :OFCa, :OFCb, :MinRun, :MaxRun)`
	for _, c := range cells {
		entry := CellEntry{
			Hash:       int64(c.Hash),
			Eta:        c.Eta,
			Phi:        c.Phi,
			DeltaEta:   c.DeltaEta,
			DeltaPhi:   c.DeltaPhi,
			Sampling:   int(c.Sampling),
			Detector:   int(c.Detector),
			RMin:       c.RMin,
			RMax:       c.RMax,
			BcidStart:  c.BcidStart,
			BcidEnd:    c.BcidEnd,
			BcDuration: c.BcDuration,
			Noise:      c.Noise,
			OFCa:       formatWeights(c.Weights.Energy),
			OFCb:       formatWeights(c.Weights.Time),
			MinRun:     minRun,
			MaxRun:     maxRun,
		}
		if _, err := tx.NamedExec(query, entry); err != nil {
			tx.Rollback()
			return fmt.Errorf("error inserting cell %d: %w", c.Hash, err)
		}
	}
	return tx.Commit()
}

// LoadGeometry reads the cells valid for runNumber.
func LoadGeometry(db *sqlx.DB, runNumber int) ([]*Cell, error) {
	query := db.Rebind(`SELECT Hash, Eta, Phi, DeltaEta, DeltaPhi, Sampling, Detector, RMin, RMax,
		BcidStart, BcidEnd, BcDuration, Noise, OFCa, OFCb, MinRun, MaxRun
		FROM CaloCells WHERE MinRun <= ? and MaxRun >= ? ORDER BY Hash`)

	if configuration.Verbosity > 0 {
		message := fmt.Sprintf("Reading cells of run %d from database", runNumber)
		logger.Info(message, "database")
	}
	if configuration.Verbosity > 2 {
		message := fmt.Sprintf("Query: %s", query)
		logger.Info(message, "database")
	}

	rows, err := db.Queryx(query, runNumber, runNumber)
	if err != nil {
		return nil, fmt.Errorf("error querying database: %w", err)
	}
	defer rows.Close()

	cells := make([]*Cell, 0)
	for rows.Next() {
		result := CellEntry{}
		if err := rows.StructScan(&result); err != nil {
			return nil, fmt.Errorf("error scanning DB row: %w", err)
		}
		cell, err := result.toCell()
		if err != nil {
			return nil, err
		}
		cells = append(cells, cell)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating DB rows: %w", err)
	}

	if configuration.Verbosity > 0 {
		message := fmt.Sprintf("%d cells read from database", len(cells))
		logger.Info(message, "database")
	}
	return cells, nil
}

func (e CellEntry) toCell() (*Cell, error) {
	hash := uint32(e.Hash)
	ofca, err := parseWeights(e.OFCa)
	if err != nil {
		return nil, &StageError{Stage: "geometry", Hash: hash, Err: fmt.Errorf("OFCa: %w", err)}
	}
	ofcb, err := parseWeights(e.OFCb)
	if err != nil {
		return nil, &StageError{Stage: "geometry", Hash: hash, Err: fmt.Errorf("OFCb: %w", err)}
	}
	return NewCell(Cell{
		Hash:       hash,
		Eta:        e.Eta,
		Phi:        e.Phi,
		DeltaEta:   e.DeltaEta,
		DeltaPhi:   e.DeltaPhi,
		Sampling:   Sampling(e.Sampling),
		Detector:   Detector(e.Detector),
		BcidStart:  e.BcidStart,
		BcidEnd:    e.BcidEnd,
		BcDuration: e.BcDuration,
		RMin:       e.RMin,
		RMax:       e.RMax,
		Noise:      e.Noise,
		Weights:    WeightSet{Energy: ofca, Time: ofcb},
	})
}

// parseWeights reads a comma separated list of coefficients.
func parseWeights(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	weights := make([]float64, len(fields))
	for i, f := range fields {
		w, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: weight %d: %v", ErrInvalidCell, i, err)
		}
		weights[i] = w
	}
	return weights, nil
}

func formatWeights(weights []float64) string {
	fields := make([]string, len(weights))
	for i, w := range weights {
		fields[i] = strconv.FormatFloat(w, 'g', -1, 64)
	}
	return strings.Join(fields, ",")
}
