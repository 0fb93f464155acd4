package runs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Kind string

const (
	KindRebuild Kind = "rebuild"
	KindLoad    Kind = "load"
	KindAnalyze Kind = "analyze"
	KindVerify  Kind = "verify"
)

const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// PipelineRun is one invocation of the pipeline and what it produced.
type PipelineRun struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Kind        string         `gorm:"column:kind;not null;index" json:"kind"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	Stage       string         `gorm:"column:stage" json:"stage"`
	FailedStep  string         `gorm:"column:failed_step" json:"failed_step,omitempty"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	Inputs      datatypes.JSON `gorm:"column:inputs" json:"inputs"`
	Diagnostics datatypes.JSON `gorm:"column:diagnostics" json:"diagnostics"`
	StartedAt   time.Time      `gorm:"column:started_at;not null;index" json:"started_at"`
	FinishedAt  *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (PipelineRun) TableName() string { return "pipeline_run" }

func (r *PipelineRun) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// PipelineRunEvent is the append-only stage timeline of a run.
type PipelineRunEvent struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RunID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"run_id"`
	Seq       int            `gorm:"column:seq;not null" json:"seq"`
	Stage     string         `gorm:"column:stage;not null" json:"stage"`
	Status    string         `gorm:"column:status;not null" json:"status"`
	Counts    datatypes.JSON `gorm:"column:counts" json:"counts"`
	Error     string         `gorm:"column:error" json:"error,omitempty"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
}

func (PipelineRunEvent) TableName() string { return "pipeline_run_event" }

func (e *PipelineRunEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
