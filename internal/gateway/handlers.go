package gateway

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"

	"trading-setups/internal/engine"
	"trading-setups/internal/model"
)

// TOTPHeader carries the one-time code required by mutating endpoints.
const TOTPHeader = "X-TOTP"

// SetupService is the engine surface the gateway needs.
type SetupService interface {
	GetActiveSetups() []model.Setup
	GetSetupsForSymbol(symbol string) []model.Setup
	GetSetup(id string) (model.Setup, bool)
	UpdateStatus(id string, status model.Status) (model.Setup, error)
	GetSymbolView(symbol string) (engine.SymbolView, bool)
	Symbols() []string
}

// Options configures a Server.
type Options struct {
	TOTPSecret     string   // empty disables the TOTP check
	AllowedOrigins []string // empty allows any origin
}

// Server serves the REST API and the websocket stream.
type Server struct {
	svc     SetupService
	history model.SetupReader // optional
	hub     *Hub
	opts    Options
	started time.Time

	upgrader websocket.Upgrader
}

// NewServer wires the API. history may be nil.
func NewServer(svc SetupService, history model.SetupReader, hub *Hub, opts Options) *Server {
	s := &Server{svc: svc, history: history, hub: hub, opts: opts, started: time.Now()}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:       s.originAllowed,
		EnableCompression: true,
	}
	return s
}

// Routes returns the HTTP handler with every route registered.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /api/setups", s.handleActive)
	mux.HandleFunc("GET /api/setups/{symbol}", s.handleSymbolSetups)
	mux.HandleFunc("GET /api/setup/{id}", s.handleSetup)
	mux.HandleFunc("POST /api/setup/{id}/status", s.requireTOTP(s.handleStatus))
	mux.HandleFunc("GET /api/symbols", s.handleSymbols)
	mux.HandleFunc("GET /api/symbols/{symbol}", s.handleSymbolView)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	return s.cors(mux)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.opts.AllowedOrigins) > 0 {
			origin = r.Header.Get("Origin")
			if !s.originAllowed(r) {
				origin = ""
			}
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+TOTPHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.opts.AllowedOrigins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (s *Server) requireTOTP(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.TOTPSecret != "" && !totp.Validate(r.Header.Get(TOTPHeader), s.opts.TOTPSecret) {
			writeError(w, http.StatusUnauthorized, "invalid or missing "+TOTPHeader)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}
	conn.EnableWriteCompression(true)

	var symbols []string
	if v := r.URL.Query().Get("symbols"); v != "" {
		symbols = strings.Split(v, ",")
	}
	lastSeq, _ := strconv.ParseInt(r.URL.Query().Get("last_seq"), 10, 64)
	s.hub.Register(conn, symbols, lastSeq)
}

// handleActive serves non-terminal setups, optionally filtered by
// type, direction, status and min_score.
func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minScore, _ := strconv.Atoi(q.Get("min_score"))
	typ := model.SetupType(strings.ToUpper(q.Get("type")))
	dir := model.Direction(strings.ToUpper(q.Get("direction")))
	status := model.Status(strings.ToUpper(q.Get("status")))

	all := s.svc.GetActiveSetups()
	out := make([]model.Setup, 0, len(all))
	for _, st := range all {
		if typ != "" && st.Type != typ {
			continue
		}
		if dir != "" && st.Direction != dir {
			continue
		}
		if status != "" && st.Status != status {
			continue
		}
		if st.ConfluenceScore < minScore {
			continue
		}
		out = append(out, st)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSymbolSetups(w http.ResponseWriter, r *http.Request) {
	out := s.svc.GetSetupsForSymbol(strings.ToUpper(r.PathValue("symbol")))
	if out == nil {
		out = []model.Setup{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	st, ok := s.svc.GetSetup(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "setup not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Status = model.Status(strings.ToUpper(string(req.Status)))
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+string(req.Status))
		return
	}

	st, err := s.svc.UpdateStatus(r.PathValue("id"), req.Status)
	switch {
	case err == nil:
		log.Printf("[gateway] setup %s set to %s", st.ID, st.Status)
		writeJSON(w, http.StatusOK, st)
	case errors.Is(err, engine.ErrUnknownSetup):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrStatusNotAllowed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrSetupTerminal):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Symbols())
}

func (s *Server) handleSymbolView(w http.ResponseWriter, r *http.Request) {
	v, ok := s.svc.GetSymbolView(strings.ToUpper(r.PathValue("symbol")))
	if !ok {
		writeError(w, http.StatusNotFound, "symbol not seen")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleHistory serves journaled setups: ?symbol=&since=RFC3339&limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history store not configured")
		return
	}
	q := r.URL.Query()
	var since time.Time
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = t
	}
	limit := 200
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 1000 {
		limit = l
	}

	out, err := s.history.ReadSetups(strings.ToUpper(q.Get("symbol")), since, limit)
	if err != nil {
		log.Printf("[gateway] history query: %v", err)
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if out == nil {
		out = []model.Setup{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ws_clients":    s.hub.ClientCount(),
		"seq":           s.hub.Seq(),
		"active_setups": len(s.svc.GetActiveSetups()),
		"symbols":       len(s.svc.Symbols()),
		"uptime_sec":    int64(time.Since(s.started).Seconds()),
		"ts":            time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[gateway] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
