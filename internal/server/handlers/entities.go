package handlers

import (
	"net/http"

	"github.com/agentstation/ecomap/internal/server/cache"
	"github.com/agentstation/ecomap/internal/server/filter"
	"github.com/agentstation/ecomap/internal/server/response"
	"github.com/agentstation/ecomap/pkg/entity"
)

// EntityList is the body of GET /api/v1/entities.
type EntityList struct {
	Entities   []*entity.Entity `json:"entities"`
	Pagination Pagination       `json:"pagination"`
}

// Pagination describes the returned window of a ranked list.
type Pagination struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// HandleListEntities handles GET /api/v1/entities. Entities are ranked by
// growth score. See filter.ParseEntityQuery for the query parameters.
func (h *Handlers) HandleListEntities(w http.ResponseWriter, r *http.Request) {
	key := cache.Key("entities", r.URL.Query())
	if cached, ok := h.cache.Get(key); ok {
		response.OK(w, cached)
		return
	}

	query, page, err := filter.ParseEntityQuery(r)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	all, err := h.client.Entities(r.Context(), query)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	items := filter.Apply(page, all)
	result := EntityList{
		Entities: items,
		Pagination: Pagination{
			Total:  len(all),
			Limit:  page.Limit,
			Offset: page.Offset,
			Count:  len(items),
		},
	}
	h.cache.Set(key, result)
	response.OK(w, result)
}

// HandleGetEntity handles GET /api/v1/entities/{id}. Absorbed ids resolve to
// the surviving entity.
func (h *Handlers) HandleGetEntity(w http.ResponseWriter, r *http.Request) {
	e, err := h.client.Entity(r.Context(), r.PathValue("id"))
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, e)
}

// HandleGetMembers handles GET /api/v1/entities/{id}/members.
func (h *Handlers) HandleGetMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.client.Members(r.Context(), r.PathValue("id"))
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	if members == nil {
		members = []entity.NormalizedRecord{}
	}
	response.OK(w, members)
}

// HandleScoreEntity handles POST /api/v1/entities/{id}/score.
func (h *Handlers) HandleScoreEntity(w http.ResponseWriter, r *http.Request) {
	e, err := h.client.Score(r.Context(), r.PathValue("id"))
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, e)
}

// HandleSubmitRecords handles POST /api/v1/records. The body is a JSON list
// of raw records queued for the next collection run.
func (h *Handlers) HandleSubmitRecords(w http.ResponseWriter, r *http.Request) {
	var records []entity.RawRecord
	if err := decodeBody(w, r, &records); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	if len(records) == 0 {
		response.BadRequest(w, "no records submitted", "")
		return
	}
	h.client.Submit(records...)
	h.logger.Info().Int("records", len(records)).Msg("Records queued for collection")
	response.Accepted(w, map[string]any{"queued": len(records)})
}
