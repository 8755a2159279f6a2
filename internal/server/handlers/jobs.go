package handlers

import (
	"net/http"
	"slices"

	"github.com/agentstation/ecomap/internal/server/filter"
	"github.com/agentstation/ecomap/internal/server/response"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/scheduler"
)

// HandleListJobs handles GET /api/v1/jobs.
func (h *Handlers) HandleListJobs(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, h.client.Entries())
}

// HandleTriggerJob handles POST /api/v1/jobs/{class}/trigger. A class that
// is already running answers 409.
func (h *Handlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	class, ok := scheduler.ParseClass(r.PathValue("class"))
	if !ok {
		response.NotFound(w, "unknown job class "+r.PathValue("class"), "")
		return
	}
	ack, err := h.client.Trigger(r.Context(), class)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.Accepted(w, ack)
}

// HandleCancelJob handles POST /api/v1/jobs/{class}/cancel.
func (h *Handlers) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	class, ok := scheduler.ParseClass(r.PathValue("class"))
	if !ok {
		response.NotFound(w, "unknown job class "+r.PathValue("class"), "")
		return
	}
	response.OK(w, map[string]any{"class": class, "canceled": h.client.Cancel(class)})
}

// HandleListRuns handles GET /api/v1/runs. Runs are listed newest first and
// filtered by the optional class and status parameters.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	page, err := filter.ParsePage(r)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	class, status := r.URL.Query().Get("class"), r.URL.Query().Get("status")

	runs := h.client.Runs()
	slices.Reverse(runs)
	runs = slices.DeleteFunc(runs, func(run scheduler.Run) bool {
		return (class != "" && string(run.Class) != class) || (status != "" && string(run.Status) != status)
	})
	response.OK(w, filter.Apply(page, runs))
}

// HandleGetRun handles GET /api/v1/runs/{id}.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, run := range h.client.Runs() {
		if run.ID == id {
			response.OK(w, run)
			return
		}
	}
	response.ErrorFromType(w, errors.NewNotFoundError("run", id))
}
