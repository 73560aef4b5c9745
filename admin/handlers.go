package admin

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"home2l/resource"
	"home2l/value"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// resourceSummary is the one-line-per-resource shape of GET /resources
// (spec §4.7 INFO verbosity 0).
type resourceSummary struct {
	URI        string `json:"uri"`
	Registered bool   `json:"registered"`
	Value      string `json:"value"`
	RegSeq     uint64 `json:"regSeq"`
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	all := s.reg.All()
	out := make([]resourceSummary, 0, len(all))
	for _, res := range all {
		out = append(out, summarize(res))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func summarize(r *resource.Resource) resourceSummary {
	return resourceSummary{
		URI:        r.URI(),
		Registered: r.IsRegistered(),
		Value:      r.Current().ToString(value.ToStringOptions{WithType: true, WithTimestamp: true}),
		RegSeq:     r.RegSeq(),
	}
}

// resourceInfo is the verbose shape of GET /resource/{uri}/info,
// tiered by the "v" query parameter the way the original's INFO
// command is tiered by verbosity (spec §4.7):
//
//	v=0 (default): resourceSummary fields plus writable
//	v=1: + the live request list
//	v=2: + the live subscriber count
type resourceInfo struct {
	resourceSummary
	Writable    bool          `json:"writable,omitempty"`
	Requests    []requestInfo `json:"requests,omitempty"`
	Subscribers *int          `json:"subscribers,omitempty"`
}

type requestInfo struct {
	ID       string `json:"id"`
	Value    string `json:"value"`
	Priority int    `json:"priority"`
	T0       int64  `json:"t0"`
	T1       int64  `json:"t1"`
}

func (s *Server) handleResourceInfo(w http.ResponseWriter, r *http.Request) {
	uri := chi.URLParam(r, "uri")
	res, ok := s.reg.Lookup(uri)
	if !ok {
		http.Error(w, "resource not found", http.StatusNotFound)
		return
	}

	verbosity := 0
	if v := r.URL.Query().Get("v"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			verbosity = parsed
		}
	}

	info := resourceInfo{resourceSummary: summarize(res), Writable: res.Writable()}

	if verbosity >= 1 {
		reqs := res.Requests()
		info.Requests = make([]requestInfo, 0, len(reqs))
		for _, req := range reqs {
			info.Requests = append(info.Requests, requestInfo{
				ID:       req.ID,
				Value:    req.Value.ToString(value.ToStringOptions{WithType: true}),
				Priority: req.Priority,
				T0:       req.T0,
				T1:       req.T1,
			})
		}
	}

	if verbosity >= 2 {
		n := s.reg.Bus().SubscriberCount(res.Topic())
		info.Subscribers = &n
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
