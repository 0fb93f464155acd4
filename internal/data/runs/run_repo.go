// Package runs persists the pipeline run ledger.
package runs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/procurement-graph/internal/domain/runs"
	"github.com/yungbote/procurement-graph/internal/platform/dbctx"
	"github.com/yungbote/procurement-graph/internal/platform/logger"
)

var ErrNotFound = errors.New("run not found")

type RunRepo interface {
	Create(dbc dbctx.Context, kind types.Kind, inputs []string) (*types.PipelineRun, error)
	AppendEvent(dbc dbctx.Context, runID uuid.UUID, stage, status string, counts map[string]int, stageErr string) error
	Finish(dbc dbctx.Context, runID uuid.UUID, status, failedStep, runErr string, diagnostics any) error
	Get(dbc dbctx.Context, runID uuid.UUID) (*types.PipelineRun, error)
	Events(dbc dbctx.Context, runID uuid.UUID) ([]*types.PipelineRunEvent, error)
	List(dbc dbctx.Context, limit int) ([]*types.PipelineRun, error)
}

type runRepo struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

func NewRunRepo(db *gorm.DB, baseLog *logger.Logger) RunRepo {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &runRepo{
		db:  db,
		log: baseLog.With("repo", "RunRepo"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *runRepo) Create(dbc dbctx.Context, kind types.Kind, inputs []string) (*types.PipelineRun, error) {
	if inputs == nil {
		inputs = []string{}
	}
	raw, err := json.Marshal(inputs)
	if err != nil {
		return nil, err
	}
	run := &types.PipelineRun{
		ID:          uuid.New(),
		Kind:        string(kind),
		Status:      types.StatusRunning,
		Inputs:      datatypes.JSON(raw),
		Diagnostics: datatypes.JSON([]byte("{}")),
		StartedAt:   r.now(),
	}
	if err := dbc.DB(r.db).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *runRepo) AppendEvent(dbc dbctx.Context, runID uuid.UUID, stage, status string, counts map[string]int, stageErr string) error {
	if runID == uuid.Nil {
		return fmt.Errorf("run id required")
	}
	if counts == nil {
		counts = map[string]int{}
	}
	raw, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	db := dbc.DB(r.db)
	var seq int64
	if err := db.Model(&types.PipelineRunEvent{}).Where("run_id = ?", runID).Count(&seq).Error; err != nil {
		return err
	}
	ev := &types.PipelineRunEvent{
		RunID:  runID,
		Seq:    int(seq) + 1,
		Stage:  stage,
		Status: status,
		Counts: datatypes.JSON(raw),
		Error:  stageErr,
	}
	if err := db.Create(ev).Error; err != nil {
		return err
	}
	return db.Model(&types.PipelineRun{}).Where("id = ?", runID).Update("stage", stage).Error
}

func (r *runRepo) Finish(dbc dbctx.Context, runID uuid.UUID, status, failedStep, runErr string, diagnostics any) error {
	raw, err := json.Marshal(diagnostics)
	if err != nil {
		return fmt.Errorf("encode diagnostics: %w", err)
	}
	res := dbc.DB(r.db).Model(&types.PipelineRun{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"status":      status,
			"failed_step": failedStep,
			"error":       runErr,
			"diagnostics": datatypes.JSON(raw),
			"finished_at": r.now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *runRepo) Get(dbc dbctx.Context, runID uuid.UUID) (*types.PipelineRun, error) {
	var run types.PipelineRun
	err := dbc.DB(r.db).Where("id = ?", runID).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *runRepo) Events(dbc dbctx.Context, runID uuid.UUID) ([]*types.PipelineRunEvent, error) {
	out := []*types.PipelineRunEvent{}
	if err := dbc.DB(r.db).
		Where("run_id = ?", runID).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// List returns the most recent runs first.
func (r *runRepo) List(dbc dbctx.Context, limit int) ([]*types.PipelineRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	out := []*types.PipelineRun{}
	if err := dbc.DB(r.db).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
