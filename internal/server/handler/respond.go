package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}

// journalQuery reads ?limit, ?offset, ?since, ?until (RFC 3339) and
// ?order=asc|desc. Limit is clamped to maxPageSize; malformed values are an
// error so the caller can answer 400.
func journalQuery(r *http.Request) (domain.ListOpts, error) {
	q := r.URL.Query()
	opts := domain.ListOpts{Limit: defaultPageSize}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, fmt.Errorf("limit must be a positive integer")
		}
		opts.Limit = min(n, maxPageSize)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("offset must be a non-negative integer")
		}
		opts.Offset = n
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"since", &opts.Since}, {"until", &opts.Until}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, fmt.Errorf("%s must be an RFC 3339 timestamp", p.name)
		}
		*p.dst = &t
	}
	switch q.Get("order") {
	case "", "desc":
	case "asc":
		opts.Ascending = true
	default:
		return opts, fmt.Errorf("order must be asc or desc")
	}
	return opts, nil
}

// streamQuery reads ?after (a stream id, default "0") and ?limit.
func streamQuery(r *http.Request) (after string, limit int) {
	after, limit = r.URL.Query().Get("after"), defaultPageSize
	if after == "" {
		after = "0"
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = min(n, maxPageSize)
	}
	return after, limit
}
