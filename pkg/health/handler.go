package health

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
)

// LivenessHandler answers 200 for as long as the process can serve HTTP.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond(w, r, &Response{Status: StatusHealthy})
	}
}

// ReadinessHandler runs checks on every request and answers 503 when
// any of them fails. The plain text body names the failed checks.
func ReadinessHandler(checks Checks, opts ...Option) http.HandlerFunc {
	cfg := newConfig(opts...)
	return func(w http.ResponseWriter, r *http.Request) {
		respond(w, r, runChecks(r.Context(), checks, cfg))
	}
}

func respond(w http.ResponseWriter, r *http.Request, resp *Response) {
	code := http.StatusOK
	if resp.Status != StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Cache-Control", "no-store")

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(resp.String() + "\n"))
}

// String is the plain text form of the response: "ok", or the failure
// followed by the sorted names of the failed checks.
func (r *Response) String() string {
	if r.Status == StatusHealthy {
		return "ok"
	}
	failed := r.Failed()
	if len(failed) == 0 {
		return ErrCheckFailed.Error()
	}
	return ErrCheckFailed.Error() + ": " + strings.Join(failed, ", ")
}

// Failed returns the sorted names of the checks that did not pass.
func (r *Response) Failed() []string {
	var names []string
	for name, c := range r.Checks {
		if c.Status != StatusHealthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// wantsJSON reports whether the caller asked for JSON with ?format=json
// or an Accept header.
func wantsJSON(r *http.Request) bool {
	if r.URL.Query().Get("format") == "json" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
