package pipeline

import (
	"errors"
	"fmt"

	"github.com/yungbote/procurement-graph/internal/loader"
	"github.com/yungbote/procurement-graph/internal/risk"
)

// StepError reports where a run stopped. Stage is the pipeline stage; Step narrows it
// to the loader step or risk pass when the failure happened inside one.
type StepError struct {
	Stage string
	Step  string
	Err   error
}

func (e *StepError) Error() string {
	if e.Step != "" && e.Step != e.Stage {
		return fmt.Sprintf("%s/%s: %v", e.Stage, e.Step, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func newStepError(stage string, err error) *StepError {
	se := &StepError{Stage: stage, Step: stage, Err: err}
	var le *loader.StepError
	var pe *risk.PassError
	switch {
	case errors.As(err, &le):
		se.Step = le.Step
	case errors.As(err, &pe):
		se.Step = pe.Pass
	}
	return se
}
