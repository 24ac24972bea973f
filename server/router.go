package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shipfast-demo/shipgate-go/shipgate"
)

// Business headers travelling alongside authenticated requests. They are
// not part of the authentication core.
const (
	HeaderDriverLatitude  = "DRIVER-LATITUDE"
	HeaderDriverLongitude = "DRIVER-LONGITUDE"
	HeaderShipmentState   = "SHIPMENT-STATE"
)

// RouterConfig wires the authentication chain in front of the shipment
// routes. All fields except Metrics and Logger are required.
type RouterConfig struct {
	SDK       *shipgate.SDK
	Users     *UserVerifier
	Shipments *ShipmentStore
	Metrics   *Metrics
	Logger    *log.Logger
}

// NewRouter builds the demo server handler. Order inside /shipments is
// metrics → core authentication chain → user identity → handler, so the
// metrics also count chain rejections and the user gate only ever sees
// requests that passed every active core gate.
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	if cfg.SDK == nil || cfg.Users == nil || cfg.Shipments == nil {
		return nil, errors.New("server: SDK, Users and Shipments are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	h := &handlers{shipments: cfg.Shipments, logger: logger}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/shipments", func(sr chi.Router) {
		if cfg.Metrics != nil {
			sr.Use(cfg.Metrics.Middleware("shipments"))
		}
		sr.Use(cfg.SDK.Authenticate)
		sr.Use(cfg.Users.Middleware)

		sr.Get("/nearest_shipment", h.nearestShipment)
		sr.Get("/delivered", h.delivered)
		sr.Get("/active", h.active)
		sr.Get("/{id}", h.byID)
		sr.Post("/update_state/{id}", h.updateState)
	})

	return r, nil
}

type handlers struct {
	shipments *ShipmentStore
	logger    *log.Logger
}

func (h *handlers) nearestShipment(w http.ResponseWriter, r *http.Request) {
	lat, err := strconv.ParseFloat(r.Header.Get(HeaderDriverLatitude), 64)
	if err != nil {
		http.Error(w, "invalid driver latitude", http.StatusBadRequest)
		return
	}
	lng, err := strconv.ParseFloat(r.Header.Get(HeaderDriverLongitude), 64)
	if err != nil {
		http.Error(w, "invalid driver longitude", http.StatusBadRequest)
		return
	}

	writeJSON(w, h.shipments.NearestTo(lat, lng))
}

func (h *handlers) delivered(w http.ResponseWriter, r *http.Request) {
	delivered := h.shipments.Delivered()
	if delivered == nil {
		delivered = []Shipment{}
	}
	writeJSON(w, delivered)
}

func (h *handlers) active(w http.ResponseWriter, r *http.Request) {
	shipment, err := h.shipments.Active()
	if err != nil {
		http.Error(w, "no active shipment", http.StatusNotFound)
		return
	}
	writeJSON(w, shipment)
}

func (h *handlers) byID(w http.ResponseWriter, r *http.Request) {
	shipment, err := h.shipments.Get(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "shipment not found", http.StatusNotFound)
		return
	}
	writeJSON(w, shipment)
}

func (h *handlers) updateState(w http.ResponseWriter, r *http.Request) {
	stateValue, err := strconv.Atoi(r.Header.Get(HeaderShipmentState))
	if err != nil {
		http.Error(w, "invalid shipment state", http.StatusBadRequest)
		return
	}

	shipment, err := h.shipments.UpdateState(chi.URLParam(r, "id"), ShipmentState(stateValue))
	switch {
	case errors.Is(err, ErrShipmentNotFound):
		http.Error(w, "shipment not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrUnknownState):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		if user, ok := UserIDFromContext(r.Context()); ok {
			h.logger.Printf("server: shipment %s moved to %s by %s", shipment.ID, shipment.State, user)
		}
		writeJSON(w, shipment)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
