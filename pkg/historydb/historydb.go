// Package historydb stores a record of every prediction run, so past results
// can be browsed, re-opened, and summarized.
package historydb

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

// SourceType is what kind of input a prediction ran on
type SourceType string

const (
	SourceImage     SourceType = "image"
	SourceDirectory SourceType = "directory"
	SourceVideo     SourceType = "video"
	SourceCamera    SourceType = "camera"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// PredictionParams is the parameter snapshot stored with each record, enough
// to reproduce the run.
type PredictionParams struct {
	ConfidenceThreshold float32 `json:"confidenceThreshold"`
	MaskThreshold       float32 `json:"maskThreshold"`
	ShowBoxes           bool    `json:"showBoxes"`
	ShowLabels          bool    `json:"showLabels"`
	ShowConfidence      bool    `json:"showConfidence"`
	SaveLabels          bool    `json:"saveLabels"`
}

// Prediction is one prediction run (one image, one directory batch, or one
// stream session).
type Prediction struct {
	BaseModel
	CreatedAt          dbh.IntTime                      `json:"createdAt"`
	ModelPath          string                           `json:"modelPath"`
	SecondaryModelPath string                           `json:"secondaryModelPath"`
	SourcePath         string                           `json:"sourcePath"`
	SourceType         SourceType                       `json:"sourceType"`
	ResultPath         string                           `json:"resultPath"`
	Params             *dbh.JSONField[PredictionParams] `json:"params"`
	Success            bool                             `json:"success"`
	Error              string                           `json:"error"`
	InferenceMS        int64                            `json:"inferenceMS"`
	NumDetections      int                              `json:"numDetections"`
	NumWarnings        int                              `json:"numWarnings"`
}

func (Prediction) TableName() string {
	return "prediction"
}

// Query filters List. Zero values mean "no filter".
type Query struct {
	SourceType  SourceType
	SearchText  string // matched against source and result paths
	OnlyFailed  bool
	OnlySuccess bool
	After       time.Time
	Before      time.Time
	Limit       int
	Offset      int
}

// Stats is the aggregate view of the history
type Stats struct {
	Total           int64            `json:"total"`
	Succeeded       int64            `json:"succeeded"`
	Failed          int64            `json:"failed"`
	AvgInferenceMS  float64          `json:"avgInferenceMS"`
	TotalDetections int64            `json:"totalDetections"`
	BySourceType    map[string]int64 `json:"bySourceType"`
}

// HistoryDB is the prediction history store
type HistoryDB struct {
	log logs.Log
	db  *gorm.DB
}

// Open or create the history DB
func Open(log logs.Log, root string) (*HistoryDB, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0770); err != nil {
		return nil, fmt.Errorf("Failed to create history storage path '%v': %w", root, err)
	}
	dbPath := filepath.Join(root, "history.sqlite")
	db, err := dbh.OpenDB(log, dbh.MakeSqliteConfig(dbPath), Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open history database %v: %w", dbPath, err)
	}
	return &HistoryDB{
		log: log,
		db:  db,
	}, nil
}

// Add stores a record and populates its ID. CreatedAt defaults to now.
func (h *HistoryDB) Add(p *Prediction) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = dbh.MakeIntTime(time.Now())
	}
	return h.db.Create(p).Error
}

// List returns matching records, newest first.
func (h *HistoryDB) List(q Query) ([]Prediction, error) {
	tx := h.db.Model(&Prediction{}).Order("created_at DESC, id DESC")
	tx = applyQuery(tx, q)
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	records := []Prediction{}
	if err := tx.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Get returns one record by ID
func (h *HistoryDB) Get(id int64) (*Prediction, error) {
	p := &Prediction{}
	if err := h.db.First(p, id).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes one record by ID
func (h *HistoryDB) Delete(id int64) error {
	return h.db.Delete(&Prediction{}, id).Error
}

// Clear removes all history
func (h *HistoryDB) Clear() error {
	return h.db.Where("1 = 1").Delete(&Prediction{}).Error
}

// Count returns the number of records matching the query
func (h *HistoryDB) Count(q Query) (int64, error) {
	n := int64(0)
	err := applyQuery(h.db.Model(&Prediction{}), q).Count(&n).Error
	return n, err
}

// Statistics aggregates the whole history
func (h *HistoryDB) Statistics() (*Stats, error) {
	s := &Stats{
		BySourceType: map[string]int64{},
	}
	if err := h.db.Model(&Prediction{}).Count(&s.Total).Error; err != nil {
		return nil, err
	}
	if err := h.db.Model(&Prediction{}).Where("success = ?", true).Count(&s.Succeeded).Error; err != nil {
		return nil, err
	}
	s.Failed = s.Total - s.Succeeded

	type aggRow struct {
		AvgMS   float64
		TotalND int64
	}
	agg := aggRow{}
	err := h.db.Model(&Prediction{}).
		Select("COALESCE(AVG(inference_ms), 0) AS avg_ms, COALESCE(SUM(num_detections), 0) AS total_nd").
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	s.AvgInferenceMS = agg.AvgMS
	s.TotalDetections = agg.TotalND

	type typeRow struct {
		SourceType string
		N          int64
	}
	rows := []typeRow{}
	err = h.db.Model(&Prediction{}).
		Select("source_type, COUNT(*) AS n").
		Group("source_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		s.BySourceType[r.SourceType] = r.N
	}
	return s, nil
}

// Close the underlying database
func (h *HistoryDB) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func applyQuery(tx *gorm.DB, q Query) *gorm.DB {
	if q.SourceType != "" {
		tx = tx.Where("source_type = ?", q.SourceType)
	}
	if q.SearchText != "" {
		like := "%" + strings.ToLower(q.SearchText) + "%"
		tx = tx.Where("LOWER(source_path) LIKE ? OR LOWER(result_path) LIKE ?", like, like)
	}
	if q.OnlyFailed {
		tx = tx.Where("success = ?", false)
	}
	if q.OnlySuccess {
		tx = tx.Where("success = ?", true)
	}
	if !q.After.IsZero() {
		tx = tx.Where("created_at >= ?", dbh.MakeIntTime(q.After))
	}
	if !q.Before.IsZero() {
		tx = tx.Where("created_at < ?", dbh.MakeIntTime(q.Before))
	}
	return tx
}
