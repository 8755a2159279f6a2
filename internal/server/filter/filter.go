// Package filter parses catalog query parameters of the HTTP API.
package filter

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/agentstation/ecomap"
	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
)

// Page limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Page selects a window of a ranked result.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Apply returns the page of items. It never returns nil.
func Apply[T any](p Page, items []T) []T {
	if p.Offset >= len(items) {
		return []T{}
	}
	end := min(p.Offset+p.Limit, len(items))
	return items[p.Offset:end]
}

// ParseEntityQuery reads the entity filter and page from the request:
//
//	status=active,flagged  type=startup  country=KR
//	min_score=40  max_score=90  absorbed=true
//	limit=20  offset=40
func ParseEntityQuery(r *http.Request) (ecomap.Query, Page, error) {
	q := r.URL.Query()
	var query ecomap.Query

	for _, s := range splitList(q.Get("status")) {
		st := entity.Status(s)
		if !st.Valid() {
			return query, Page{}, errors.NewValidationError("status", s, "unknown status")
		}
		query.Statuses = append(query.Statuses, st)
	}
	for _, s := range splitList(q.Get("type")) {
		et := entity.Type(s)
		if !et.Valid() {
			return query, Page{}, errors.NewValidationError("type", s, "unknown entity type")
		}
		query.Types = append(query.Types, et)
	}

	var err error
	if query.MinScore, err = parseScore(q.Get("min_score"), "min_score"); err != nil {
		return query, Page{}, err
	}
	if query.MaxScore, err = parseScore(q.Get("max_score"), "max_score"); err != nil {
		return query, Page{}, err
	}
	query.Country = strings.TrimSpace(q.Get("country"))
	if v := q.Get("absorbed"); v != "" {
		if query.IncludeAbsorbed, err = strconv.ParseBool(v); err != nil {
			return query, Page{}, errors.NewValidationError("absorbed", v, "must be a boolean")
		}
	}

	page, err := ParsePage(r)
	return query, page, err
}

// ParsePage reads limit and offset. Limit defaults to DefaultLimit and is
// capped at MaxLimit.
func ParsePage(r *http.Request) (Page, error) {
	q := r.URL.Query()
	page := Page{Limit: DefaultLimit}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page, errors.NewValidationError("limit", v, "must be a positive integer")
		}
		page.Limit = min(n, MaxLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, errors.NewValidationError("offset", v, "must be a non-negative integer")
		}
		page.Offset = n
	}
	return page, nil
}

func parseScore(v, field string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || f < 0 || f > 100 {
		return nil, errors.NewValidationError(field, v, "must be a number between 0 and 100")
	}
	return &f, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
