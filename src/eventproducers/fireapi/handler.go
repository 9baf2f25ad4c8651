package fireapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quantfire/signal-dispatch/src/eventconsumers"
	"github.com/quantfire/signal-dispatch/src/eventmodels"
	"github.com/quantfire/signal-dispatch/src/eventproducers"
)

// The fire endpoint is synchronous: the caller learns in one round trip
// whether the command was dispatched and, on a risk denial, the largest
// volume that would have passed.
func fireHandler(router *eventconsumers.RouterWorker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var req eventmodels.FireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			eventproducers.RespondError(w, http.StatusBadRequest, "failed to parse fire request")
			return
		}

		result := router.Route(r.Context(), &req)

		status := http.StatusOK
		if !result.OK {
			status = http.StatusUnprocessableEntity
		}

		eventproducers.RespondJSON(w, status, result)
	}
}

func SetupHandler(router *mux.Router, worker *eventconsumers.RouterWorker) {
	router.HandleFunc("", fireHandler(worker))
}
