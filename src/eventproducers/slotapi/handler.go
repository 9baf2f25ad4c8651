package slotapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	log "github.com/sirupsen/logrus"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
	"github.com/quantfire/signal-dispatch/src/eventproducers"
)

var queryDecoder = schema.NewDecoder()

func init() {
	queryDecoder.IgnoreUnknownKeys(true)
}

type slotsQuery struct {
	UserID string `schema:"user_id"`
}

func slotsHandler(store eventmodels.SlotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var q slotsQuery
		if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
			eventproducers.RespondError(w, http.StatusBadRequest, "failed to parse query")
			return
		}

		slots, err := store.OpenSlots(r.Context())
		if err != nil {
			log.WithContext(r.Context()).Errorf("slotapi: failed to list open slots: %v", err)
			eventproducers.RespondError(w, http.StatusInternalServerError, "failed to list slots")
			return
		}

		if q.UserID != "" {
			filtered := slots[:0]
			for _, s := range slots {
				if s.UserID == q.UserID {
					filtered = append(filtered, s)
				}
			}
			slots = filtered
		}

		eventproducers.RespondJSON(w, http.StatusOK, slots)
	}
}

func bindingsHandler(store eventmodels.BindingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		bindings, err := store.ListBindings(r.Context())
		if err != nil {
			log.WithContext(r.Context()).Errorf("slotapi: failed to list bindings: %v", err)
			eventproducers.RespondError(w, http.StatusInternalServerError, "failed to list bindings")
			return
		}

		eventproducers.RespondJSON(w, http.StatusOK, bindings)
	}
}

func SetupHandler(router *mux.Router, slots eventmodels.SlotStore, bindings eventmodels.BindingStore) {
	router.HandleFunc("/slots", slotsHandler(slots))
	router.HandleFunc("/bindings", bindingsHandler(bindings))
}
