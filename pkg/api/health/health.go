// Package health mounts the liveness and readiness endpoints alongside
// the peering surface.
package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Checker reports whether the process is ready to take traffic —
// typically the Config Store's directories being reachable and the
// registry mirror's last refresh not catastrophically stale.
type Checker func(r *http.Request) error

// Router mounts GET /healthz (process is alive) and GET /readyz
// (dependencies are reachable).
func Router(ready Checker) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", getHealthz)
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := ready(r); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func getHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
