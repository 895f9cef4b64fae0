package server

import (
	"encoding/json"
	"net/http"
)

// Problem type URIs used by the core server. Plugins answer with their own.
const (
	ProblemTypeNotFound    = "urn:logsentinel:problem:not-found"
	ProblemTypeInternal    = "urn:logsentinel:problem:internal-error"
	ProblemTypeRateLimited = "urn:logsentinel:problem:rate-limited"
	ProblemTypeNotReady    = "urn:logsentinel:problem:not-ready"
)

// Problem is an RFC 7807 problem details body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// WriteProblem writes p as application/problem+json. An empty Title takes
// the status text.
func WriteProblem(w http.ResponseWriter, p Problem) {
	if p.Title == "" {
		p.Title = http.StatusText(p.Status)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func problem(w http.ResponseWriter, status int, typ, detail, instance string) {
	WriteProblem(w, Problem{Type: typ, Status: status, Detail: detail, Instance: instance})
}

// NotFound writes a 404 problem.
func NotFound(w http.ResponseWriter, detail, instance string) {
	problem(w, http.StatusNotFound, ProblemTypeNotFound, detail, instance)
}

// InternalError writes a 500 problem.
func InternalError(w http.ResponseWriter, detail, instance string) {
	problem(w, http.StatusInternalServerError, ProblemTypeInternal, detail, instance)
}

// RateLimited writes a 429 problem.
func RateLimited(w http.ResponseWriter, detail, instance string) {
	problem(w, http.StatusTooManyRequests, ProblemTypeRateLimited, detail, instance)
}

// NotReady writes a 503 problem.
func NotReady(w http.ResponseWriter, detail, instance string) {
	problem(w, http.StatusServiceUnavailable, ProblemTypeNotReady, detail, instance)
}
