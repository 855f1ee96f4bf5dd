// Package rundb keeps a history of conversion runs and split searches.
package rundb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	KindConvert = "convert"
	KindSearch  = "search"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

type Run struct {
	ID        string      `gorm:"primaryKey" json:"id"`
	CreatedAt dbh.IntTime `json:"createdAt"`
	Kind      string      `json:"kind"`
	SearchID  string      `json:"searchId"` // Groups the attempts of one split search
	Formats   string      `json:"formats"`
	Seed      int64       `json:"seed"`
	Images    int         `json:"images"`
	Boxes     int         `json:"boxes"`
	MaxDelta  float64     `json:"maxDelta"`  // Largest |target delta| of any class, in percent
	MeanDelta float64     `json:"meanDelta"` // Mean |target delta|, in percent
	Config    string      `json:"config"`    // JSON of the job config
}

type RunSplit struct {
	BaseModel
	RunID  string `json:"runId"`
	Split  string `json:"split"`
	Images int    `json:"images"`
	Boxes  int    `json:"boxes"`
}

type RunBox struct {
	BaseModel
	RunID     string `json:"runId"`
	ClassID   int    `json:"classId"`
	ClassName string `json:"className"`
	Split     string `json:"split"`
	Count     int    `json:"count"`
}

type RunDB struct {
	Log logs.Log
	DB  *gorm.DB
}

func Open(log logs.Log, dbFilename string) (*RunDB, error) {
	os.MkdirAll(filepath.Dir(dbFilename), 0755)
	db, err := dbh.OpenDB(log, dbh.MakeSqliteConfig(dbFilename), Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open database %v: %w", dbFilename, err)
	}
	return &RunDB{
		Log: log,
		DB:  db,
	}, nil
}

func NewRunID() string {
	return uuid.NewString()
}

// Save inserts a run with its per-split and per-class rows.
// Missing ids and timestamps are filled in.
func (r *RunDB) Save(run *Run, splits []RunSplit, boxes []RunBox) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = dbh.MakeIntTime(time.Now())
	}
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		for i := range splits {
			splits[i].RunID = run.ID
		}
		for i := range boxes {
			boxes[i].RunID = run.ID
		}
		if len(splits) != 0 {
			if err := tx.Create(&splits).Error; err != nil {
				return err
			}
		}
		if len(boxes) != 0 {
			if err := tx.CreateInBatches(&boxes, 500).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Recent returns the newest runs first
func (r *RunDB) Recent(limit int) ([]Run, error) {
	runs := []Run{}
	err := r.DB.Order("created_at DESC, id").Limit(limit).Find(&runs).Error
	return runs, err
}

func (r *RunDB) Splits(runID string) ([]RunSplit, error) {
	rows := []RunSplit{}
	err := r.DB.Where("run_id = ?", runID).Order("id").Find(&rows).Error
	return rows, err
}

func (r *RunDB) Boxes(runID string) ([]RunBox, error) {
	rows := []RunBox{}
	err := r.DB.Where("run_id = ?", runID).Order("class_id, split").Find(&rows).Error
	return rows, err
}

// BestAttempt returns the attempt of a split search with the smallest max delta
func (r *RunDB) BestAttempt(searchID string) (*Run, error) {
	run := Run{}
	err := r.DB.Where("search_id = ?", searchID).Order("max_delta, mean_delta").First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}
