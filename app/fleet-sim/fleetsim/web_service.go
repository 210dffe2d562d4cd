package fleetsim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	logger "log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OpenTransitTools/fleetsim/business/data/fleetstore"
	"github.com/OpenTransitTools/fleetsim/business/sim/trip"
	"github.com/gorilla/mux"
)

//defaultPageSize applies when get-all-vehicle-states is called without pageSize
const defaultPageSize = 10

//defaultHttpHandler simple default http handler for default route
type defaultHttpHandler struct {
}

//ServeHTTP implements defaultHttpHandler http.Handler interface
func (h *defaultHttpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Application-Status", "OK")
}

//fleetApi holds data needed to respond to fleet requests
type fleetApi struct {
	log     *logger.Logger
	manager *Manager
}

//fleetApi factory
func makeFleetApi(log *logger.Logger, manager *Manager) *fleetApi {
	return &fleetApi{
		log:     log,
		manager: manager,
	}
}

//errorResponse is the json body sent with every error status
type errorResponse struct {
	Error string `json:"error"`
}

//positionRequest is the body of a one-shot position query
type positionRequest struct {
	TripPlan     *trip.Plan `json:"tripPlan"`
	MetersTravel float64    `json:"metersTravel"`
}

//resetResponse confirms a fleet reset
type resetResponse struct {
	Reset bool `json:"reset"`
}

//createVehicle registers one vehicle from a trip plan body
func (a *fleetApi) createVehicle(w http.ResponseWriter, r *http.Request) {
	var plan trip.Plan
	if err := decodeJsonBody(r, &plan); err != nil {
		a.respondError(w, err)
		return
	}
	state, err := a.manager.CreateVehicle(r.Context(), &plan)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJson(w, state)
}

//createCrissCross registers a fan of vehicles around a center point
func (a *fleetApi) createCrissCross(w http.ResponseWriter, r *http.Request) {
	var pattern trip.CrissCross
	if err := decodeJsonBody(r, &pattern); err != nil {
		a.respondError(w, err)
		return
	}
	states, err := a.manager.CreateCrissCross(r.Context(), pattern)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJson(w, states)
}

//vehicleState serves the stored state of one vehicle
func (a *fleetApi) vehicleState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	state, err := a.manager.Vehicle(r.Context(), id)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJson(w, state)
}

//vehicleDirections serves the directions of one vehicle. "wait=false" skips
//waiting on a pending load and 404s until it completes.
func (a *fleetApi) vehicleDirections(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	wait := strings.ToLower(r.FormValue("wait")) != "false"
	directions, err := a.manager.VehicleDirections(r.Context(), id, wait)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJson(w, directions)
}

//allVehicleStates serves one page of vehicle states
func (a *fleetApi) allVehicleStates(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 0)
	if err != nil {
		a.respondError(w, err)
		return
	}
	pageSize, err := queryInt(r, "pageSize", defaultPageSize)
	if err != nil {
		a.respondError(w, err)
		return
	}
	result, err := a.manager.VehiclePage(r.Context(), page, pageSize)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJson(w, result)
}

//resetServer empties the fleet
func (a *fleetApi) resetServer(w http.ResponseWriter, r *http.Request) {
	if err := a.manager.Reset(r.Context()); err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJson(w, resetResponse{Reset: true})
}

//getDirections resolves a trip plan body to directions without creating a vehicle
func (a *fleetApi) getDirections(w http.ResponseWriter, r *http.Request) {
	var plan trip.Plan
	if err := decodeJsonBody(r, &plan); err != nil {
		a.respondError(w, err)
		return
	}
	directions, err := a.manager.TripDirections(r.Context(), &plan)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJson(w, directions)
}

//getPosition resolves the point a given distance along a trip plan's route
func (a *fleetApi) getPosition(w http.ResponseWriter, r *http.Request) {
	var request positionRequest
	if err := decodeJsonBody(r, &request); err != nil {
		a.respondError(w, err)
		return
	}
	position, err := a.manager.PositionAt(r.Context(), request.TripPlan, request.MetersTravel)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJson(w, position)
}

//respondJson marshals payload and writes it with a json content type
func (a *fleetApi) respondJson(w http.ResponseWriter, payload interface{}) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		a.log.Printf("Error marshaling response to json: error:%v\n", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(jsonData); err != nil {
		a.log.Printf("Error writing json response: %s", err)
	}
}

//respondError maps an error onto its status code and sends a json error body
func (a *fleetApi) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, fleetstore.ErrNotFound), errors.Is(err, ErrNotReady):
		status = http.StatusNotFound
	case errors.Is(err, ErrUpstream):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		a.log.Printf("Error serving request: error:%v\n", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encodeErr := json.NewEncoder(w).Encode(errorResponse{Error: err.Error()}); encodeErr != nil {
		a.log.Printf("Error writing error response: %s", encodeErr)
	}
}

//decodeJsonBody decodes a request body, reporting malformed json as invalid input
func decodeJsonBody(r *http.Request, out interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding request body: %v", ErrInvalidInput, err)
	}
	return nil
}

//queryInt reads an integer query parameter, applying fallback when absent
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.FormValue(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidInput, name, raw)
	}
	return value, nil
}

//createServer creates configured http.Server for the fleet api
func createServer(log *logger.Logger,
	manager *Manager,
	metrics *simMetrics,
	webHost string) *http.Server {

	api := makeFleetApi(log, manager)

	r := mux.NewRouter()
	r.Handle("/", &defaultHttpHandler{})
	r.HandleFunc("/api/vehicle/create-new", api.createVehicle).Methods(http.MethodPost)
	r.HandleFunc("/api/vehicle/create-crisscross", api.createCrissCross).Methods(http.MethodPost)
	r.HandleFunc("/api/vehicle/get-vehicle-state/{id}", api.vehicleState).Methods(http.MethodGet)
	r.HandleFunc("/api/vehicle/get-vehicle-directions/{id}", api.vehicleDirections).Methods(http.MethodGet)
	r.HandleFunc("/api/vehicle/get-all-vehicle-states", api.allVehicleStates).Methods(http.MethodGet)
	r.HandleFunc("/api/vehicle/reset-server", api.resetServer).Methods(http.MethodGet)
	r.HandleFunc("/api/trips/get-directions", api.getDirections).Methods(http.MethodPost)
	r.HandleFunc("/api/position/get-position", api.getPosition).Methods(http.MethodPost)
	r.Handle("/metrics", metrics.handler()).Methods(http.MethodGet)

	srv := &http.Server{
		Addr: webHost,
		// Good practice to set timeouts to avoid Slowloris attacks.
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}
	return srv
}

//runWebService starts up the fleet web service, and terminates on shutdown signal
func runWebService(log *logger.Logger,
	wg *sync.WaitGroup,
	manager *Manager,
	metrics *simMetrics,
	webHost string,
	shutdownSignal chan bool,
) {
	wg.Add(1)
	defer wg.Done()
	srv := createServer(log, manager, metrics, webHost)
	log.Printf("Starting web service on %s", webHost)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("server ListenAndServe ended. %s", err)
		}
	}()

	select {
	case <-shutdownSignal:
		log.Printf("ending webservice on shutdown signal")
		shutdownCtx, serverCancelFunc := context.WithTimeout(context.Background(), time.Duration(5)*time.Second)
		defer serverCancelFunc()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("error shutting down webservice, error:%s", err)
		}
	}
}
