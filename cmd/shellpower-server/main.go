// Command shellpower-server exposes scenario simulation over a small REST
// API, computing steps on demand for the requested instants.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/UBC-Solar/shellpower/internal/constants"
	"github.com/UBC-Solar/shellpower/internal/log"
	"github.com/UBC-Solar/shellpower/internal/scenario"
	"github.com/UBC-Solar/shellpower/pkg/astro"
	"github.com/UBC-Solar/shellpower/pkg/raster"
	"github.com/UBC-Solar/shellpower/pkg/simulator"
)

type server struct {
	loaded *scenario.Loaded

	// The simulator owns a single render target; one step at a time.
	mu  sync.Mutex
	sim *simulator.Simulator
}

func main() {
	scenarioFile := flag.String("scenario", "scenario.json", "Path to the JSON scenario file")
	listen := flag.String("listen", ":8080", "Listen address")
	resolution := flag.Int("resolution", raster.DefaultResolution, "Render target resolution (pixels per side)")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("shellpower-server %s\n", constants.Version)
		os.Exit(0)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	loaded, err := scenario.Load(*scenarioFile)
	if err != nil {
		log.Errorf("Failed to load scenario: %v", err)
		os.Exit(1)
	}

	sim, err := simulator.New(simulator.Config{
		Raster: raster.Config{Resolution: *resolution},
	}, log.GetSugaredLogger())
	if err != nil {
		log.Errorf("Failed to set up simulator: %v", err)
		os.Exit(1)
	}

	s := &server{loaded: loaded, sim: sim}

	httpServer := &http.Server{
		Addr:         *listen,
		Handler:      s.setupRouter(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		log.Infof("Listening on %s", *listen)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("HTTP server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpServer.Shutdown(ctx)
}

func (s *server) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/step", s.handleStep).Methods("GET")
	api.HandleFunc("/strings", s.handleStrings).Methods("GET")

	return router
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debugf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}

type statusResponse struct {
	Version    string  `json:"version"`
	MeshFile   string  `json:"mesh_file"`
	Strings    int     `json:"strings"`
	Cells      int     `json:"cells"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	HeadingDeg float64 `json:"heading_deg"`
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sc := s.loaded.Scenario
	writeJSON(w, http.StatusOK, statusResponse{
		Version:    constants.Version,
		MeshFile:   sc.MeshFile,
		Strings:    len(s.loaded.Input.Array.Strings),
		Cells:      s.loaded.Input.Array.CellCount(),
		Latitude:   sc.Latitude,
		Longitude:  sc.Longitude,
		HeadingDeg: sc.HeadingDeg,
	})
}

type stepResponse struct {
	Timestamp     string  `json:"timestamp"`
	SunAltitude   float64 `json:"sun_altitude_deg"`
	SunAzimuth    float64 `json:"sun_azimuth_deg"`
	ArrayPower    float64 `json:"array_power_watts"`
	WattsIn       float64 `json:"insolation_watts"`
	LitArea       float64 `json:"lit_area_m2"`
	UnlinkedWatts float64 `json:"unlinked_watts,omitempty"`
}

func (s *server) handleStep(w http.ResponseWriter, r *http.Request) {
	t, alt, az, out, err := s.runStep(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := stepResponse{Timestamp: t.Format(time.RFC3339), SunAltitude: alt, SunAzimuth: az}
	if out != nil {
		resp.ArrayPower = out.ArrayPower
		resp.WattsIn = out.WattsIn
		resp.LitArea = out.ArrayLitArea
		resp.UnlinkedWatts = out.UnlinkedWatts
	}
	writeJSON(w, http.StatusOK, resp)
}

type stringResponse struct {
	Name    string  `json:"name"`
	Power   float64 `json:"power_watts"`
	Voltage float64 `json:"mpp_volts"`
	Current float64 `json:"mpp_amps"`
	WattsIn float64 `json:"insolation_watts"`
	LitArea float64 `json:"lit_area_m2"`
}

func (s *server) handleStrings(w http.ResponseWriter, r *http.Request) {
	t, _, _, out, err := s.runStep(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := struct {
		Timestamp string           `json:"timestamp"`
		Strings   []stringResponse `json:"strings"`
	}{Timestamp: t.Format(time.RFC3339)}
	if out != nil {
		for _, str := range out.Strings {
			resp.Strings = append(resp.Strings, stringResponse{
				Name:    str.Name,
				Power:   str.Trace.Pmp,
				Voltage: str.Trace.Vmp,
				Current: str.Trace.Imp,
				WattsIn: str.WattsIn,
				LitArea: str.LitArea,
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// runStep parses the ?time= query, computes the sun position and runs one
// simulation step. A nil StepOutput with no error means the sun is down.
func (s *server) runStep(r *http.Request) (time.Time, float64, float64, *simulator.StepOutput, error) {
	t := time.Now().UTC()
	if q := r.URL.Query().Get("time"); q != "" {
		var err error
		t, err = time.Parse(time.RFC3339, q)
		if err != nil {
			return t, 0, 0, nil, &apiError{http.StatusBadRequest, fmt.Sprintf("bad time parameter: %v", err)}
		}
	}

	sc := s.loaded.Scenario
	alt, az := astro.SunAltAz(t, s.loaded.Observer)
	sun := astro.SunDirection(t, s.loaded.Observer, sc.HeadingDeg, sc.TiltDeg)
	if sun == (r3.Vec{}) {
		return t, alt, az, nil, nil
	}

	in := *s.loaded.Input
	in.SunDirection = sun

	s.mu.Lock()
	out, err := s.sim.Simulate(r.Context(), &in)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, simulator.ErrPrecondition) {
			return t, alt, az, nil, &apiError{http.StatusBadRequest, err.Error()}
		}
		return t, alt, az, nil, &apiError{http.StatusInternalServerError, err.Error()}
	}
	return t, alt, az, out, nil
}

type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

func writeError(w http.ResponseWriter, err error) {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		apiErr = &apiError{http.StatusInternalServerError, err.Error()}
	}
	writeJSON(w, apiErr.status, map[string]string{"error": apiErr.message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}
