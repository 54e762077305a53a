package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"pillbot/internal/dose"
	logx "pillbot/pkg/logx"
)

type scheduleJSON struct {
	Name      string           `json:"name"`
	StartDate string           `json:"start_date"`
	Schedule  []dose.WirePhase `json:"schedule"`
	// Active is today's phase, absent when the schedule is idle today.
	Active *dose.WirePhase `json:"active,omitempty"`
}

type itemJSON struct {
	Name  string `json:"name"`
	Dose  string `json:"dose"`
	Time  string `json:"time"`
	Taken bool   `json:"taken"`
}

type takenRequest struct {
	Name string `json:"name"`
	Time string `json:"time"`
	Date string `json:"date,omitempty"` // default: today
}

// Handler builds the route tree for cfg.
func (s *Server) Handler(cfg Config) http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestLog)
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	auth := requireToken([]byte(cfg.JWTSecret))
	api := r.PathPrefix("/api/v1/owners/{owner:-?[0-9]+}").Subrouter()
	api.Use(auth, ownerScope)
	api.HandleFunc("/schedules", s.listSchedules).Methods(http.MethodGet)
	api.HandleFunc("/schedules", s.addSchedule).Methods(http.MethodPost)
	api.HandleFunc("/schedules/{name}", s.deleteSchedule).Methods(http.MethodDelete)
	api.HandleFunc("/pending", s.pending).Methods(http.MethodGet)
	api.HandleFunc("/today", s.today).Methods(http.MethodGet)
	api.HandleFunc("/taken", s.recordTaken).Methods(http.MethodPost)

	if cfg.Pprof {
		dbg := r.PathPrefix("/debug/pprof").Subrouter()
		dbg.Use(auth)
		dbg.HandleFunc("/cmdline", pprof.Cmdline)
		dbg.HandleFunc("/profile", pprof.Profile)
		dbg.HandleFunc("/symbol", pprof.Symbol)
		dbg.HandleFunc("/trace", pprof.Trace)
		dbg.PathPrefix("/").HandlerFunc(pprof.Index)
	}
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		s.log.Debug("http request",
			logx.String("rid", rid),
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", sw.status),
			logx.Duration("took", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ownerScope rejects non-positive path owners and any owner other than the
// token owner.
func ownerScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := strconv.ParseInt(mux.Vars(r)["owner"], 10, 64)
		if err != nil || !dose.ValidOwner(owner) {
			writeError(w, http.StatusBadRequest, "bad owner id")
			return
		}
		if tokOwner, ok := authOwner(r.Context()); ok && tokOwner != owner {
			writeError(w, http.StatusForbidden, "token does not grant access to this owner")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func pathOwner(r *http.Request) int64 {
	owner, _ := strconv.ParseInt(mux.Vars(r)["owner"], 10, 64)
	return owner
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": s.deps.Clock.Now()})
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, bad, err := dose.LoadSchedules(r.Context(), s.deps.Store, pathOwner(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	for _, e := range bad {
		s.log.Warn("skipping malformed schedule", logx.Err(e))
	}
	today := dose.DateOf(s.deps.Clock.Now())
	out := make([]scheduleJSON, 0, len(schedules))
	for _, sc := range schedules {
		js := scheduleJSON{Name: sc.Name, StartDate: sc.Start.String(), Schedule: dose.PhasesToWire(sc.Phases)}
		if res, ok := dose.ResolveOn(sc, today); ok {
			active := dose.PhasesToWire([]dose.Phase{res.Phase})[0]
			js.Active = &active
		}
		out = append(out, js)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) addSchedule(w http.ResponseWriter, r *http.Request) {
	var in dose.WireSchedule
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sc, err := dose.FromWire(pathOwner(r), in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Store.InsertSchedule(r.Context(), sc); err != nil {
		s.writeDomainError(w, dose.Unavailable("insert schedule", err))
		return
	}
	writeJSON(w, http.StatusCreated, scheduleJSON{Name: sc.Name, StartDate: sc.Start.String(), Schedule: dose.PhasesToWire(sc.Phases)})
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	n, err := dose.DeleteSchedule(r.Context(), s.deps.Store, pathOwner(r), mux.Vars(r)["name"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) pending(w http.ResponseWriter, r *http.Request) {
	at, ok := s.asOf(w, r)
	if !ok {
		return
	}
	items, err := s.deps.Planner.PendingFor(r.Context(), pathOwner(r), at)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItems(items))
}

func (s *Server) today(w http.ResponseWriter, r *http.Request) {
	at, ok := s.asOf(w, r)
	if !ok {
		return
	}
	items, err := s.deps.Planner.DueOn(r.Context(), pathOwner(r), at)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItems(items))
}

func (s *Server) recordTaken(w http.ResponseWriter, r *http.Request) {
	var in takenRequest
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	now := s.deps.Clock.Now()
	day := dose.DateOf(now)
	if in.Date != "" {
		d, err := dose.ParseDate(in.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		day = d
	}
	tod, err := dose.ParseTimeOfDay(in.Time)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slot := dose.Slot{OwnerID: pathOwner(r), Name: in.Name, Date: day, Time: tod}
	if err := s.deps.Ledger.RecordTaken(r.Context(), slot, now); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"slot": slot.Key()})
}

// asOf reads ?at=RFC3339, defaulting to now in the clock's zone.
func (s *Server) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	now := s.deps.Clock.Now()
	raw := r.URL.Query().Get("at")
	if raw == "" {
		return now, true
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "at: want RFC3339")
		return time.Time{}, false
	}
	return at.In(now.Location()), true
}

func toItems(items []dose.Item) []itemJSON {
	out := make([]itemJSON, 0, len(items))
	for _, it := range items {
		out = append(out, itemJSON{Name: it.Name, Dose: it.Dose, Time: it.Time.String(), Taken: it.Taken})
	}
	return out
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dose.ErrAlreadyLogged), errors.Is(err, dose.ErrScheduleExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dose.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dose.ErrMalformedSchedule), errors.Is(err, dose.ErrInvalidOwner):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("http api store failure", logx.Err(err))
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
