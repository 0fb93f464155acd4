package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/procurement-graph/internal/http/response"
	"github.com/yungbote/procurement-graph/internal/realtime/bus"
)

// LiveRuns reports the latest bus event of each recently active run.
type LiveRuns interface {
	Runs() []bus.Event
}

type LiveHandler struct {
	live LiveRuns
}

func NewLiveHandler(live LiveRuns) *LiveHandler { return &LiveHandler{live: live} }

// GET /api/live
func (h *LiveHandler) List(c *gin.Context) {
	events := []bus.Event{}
	if h.live != nil {
		events = h.live.Runs()
	}
	response.RespondOK(c, gin.H{"runs": events})
}
