// Package storage persists sweep results to a SQLite database for later
// reporting.
package storage

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/UBC-Solar/shellpower/internal/log"
	"github.com/UBC-Solar/shellpower/pkg/simulator"
)

// StepRecord is one stored simulation step.
type StepRecord struct {
	ID              uint      `gorm:"primaryKey"`
	Timestamp       time.Time `gorm:"index"`
	InsolationWatts float64
	OutputWatts     float64
	LitAreaM2       float64
	UnlinkedWatts   float64
	CreatedAt       time.Time
}

// Client holds the connection to the results database.
type Client struct {
	DB *gorm.DB
}

// Open connects to (or creates) the SQLite results database and migrates the
// schema.
func Open(path string) (*Client, error) {
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Warn,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("opening results database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&StepRecord{}); err != nil {
		return nil, fmt.Errorf("migrating results schema: %w", err)
	}
	return &Client{DB: db}, nil
}

// SaveSweep stores every row of a sweep in time order.
func (c *Client) SaveSweep(result *simulator.SweepResult) error {
	records := make([]StepRecord, 0, len(result.Rows))
	for i, row := range result.Rows {
		ts, err := time.Parse(time.RFC3339, row.Timestamp)
		if err != nil {
			return fmt.Errorf("row %d has unparseable timestamp %q: %w", i, row.Timestamp, err)
		}
		rec := StepRecord{
			Timestamp:       ts,
			InsolationWatts: row.InsolationWatts,
			OutputWatts:     row.OutputWatts,
		}
		if step := result.Steps[i]; step != nil {
			rec.LitAreaM2 = step.ArrayLitArea
			rec.UnlinkedWatts = step.UnlinkedWatts
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil
	}
	return c.DB.Create(&records).Error
}
