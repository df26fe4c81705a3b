package configsync

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
)

// EntryPath is the route template of the primary's configuration endpoint.
const EntryPath = "/configuration/{configName}/GetConfigurationEntry"

// Routes registers the configuration endpoint on r. Authentication is the
// caller's concern and is expected to be applied with r.Use.
func (p *Primary) Routes(r *mux.Router) {
	r.HandleFunc(EntryPath, p.serveEntry).Methods(http.MethodGet)
}

// Handler returns a router serving only the configuration endpoint wrapped
// in the given middleware.
func (p *Primary) Handler(mw ...mux.MiddlewareFunc) http.Handler {
	r := mux.NewRouter()
	r.Use(mw...)
	p.Routes(r)
	return r
}

func (p *Primary) serveEntry(w http.ResponseWriter, r *http.Request) {
	if mux.Vars(r)["configName"] != ConfigName {
		http.NotFound(w, r)
		return
	}

	key := r.URL.Query().Get("key")
	value, err := p.RemoteValue(key)
	if err != nil {
		if errors.Is(err, ErrUnknownKey) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(value)
}
