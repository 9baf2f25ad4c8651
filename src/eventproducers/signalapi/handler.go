package signalapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
	"github.com/quantfire/signal-dispatch/src/eventproducers"
	pubsub "github.com/quantfire/signal-dispatch/src/eventpubsub"
)

func signalsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var signal eventmodels.Signal
	if err := json.NewDecoder(r.Body).Decode(&signal); err != nil {
		eventproducers.RespondError(w, http.StatusBadRequest, "failed to parse signal payload")
		return
	}

	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = time.Now().UTC()
	}

	if err := signal.Validate(); err != nil {
		log.WithContext(r.Context()).Infof("signalapi: rejecting invalid signal: %v", err)
		eventproducers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	pubsub.Publish("signalapi", pubsub.NewSignalEvent, eventmodels.NewSignalEvent{
		Ctx:    r.Context(),
		Signal: signal,
	})

	eventproducers.RespondJSON(w, http.StatusAccepted, map[string]string{
		"signal_id": signal.SignalID,
		"status":    "queued",
	})
}

func SetupHandler(router *mux.Router) {
	router.HandleFunc("", signalsHandler)
}
