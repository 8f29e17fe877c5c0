package httpx

import "net/http"

// healthStatus is the liveness probe body. It carries the service name so a
// misrouted probe against the wrong backend is obvious from the response.
type healthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// healthHandler answers readiness and liveness checks. It touches nothing
// downstream; queue and database reachability surface through the stats
// endpoints instead.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	WriteJSON(w, http.StatusOK, healthStatus{Status: "ok", Service: "gradebench"})
}
