package pipeline

import (
	"time"

	"github.com/yungbote/procurement-graph/internal/dedup"
	"github.com/yungbote/procurement-graph/internal/loader"
	"github.com/yungbote/procurement-graph/internal/risk"
	"github.com/yungbote/procurement-graph/internal/verify"
)

const maxRejectionSamples = 20

type StageTiming struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMS int64  `json:"durationMs"`
}

// Diagnostics is everything a run counted. Sections for stages that did not run stay nil.
type Diagnostics struct {
	RunID      string    `json:"runId"`
	Kind       string    `json:"kind"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	RawRecords       int      `json:"rawRecords"`
	Normalized       int      `json:"normalized"`
	Rejected         int      `json:"rejected"`
	RejectionSamples []string `json:"rejectionSamples,omitempty"`

	Duplicates            int                  `json:"duplicates"`
	DuplicateGroups       []dedup.GroupDiscard `json:"duplicateGroups,omitempty"`
	ContractsWithoutAward int                  `json:"contractsWithoutAward"`

	Load   *loader.Stats  `json:"load,omitempty"`
	Risk   *risk.Result   `json:"risk,omitempty"`
	Verify *verify.Report `json:"verify,omitempty"`

	Stages     []StageTiming `json:"stages"`
	FailedStep string        `json:"failedStep,omitempty"`
	Error      string        `json:"error,omitempty"`
}
