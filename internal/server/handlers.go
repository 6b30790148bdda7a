package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagesplit/pagesplit/internal/engine"
	"github.com/pagesplit/pagesplit/internal/store"
)

type HealthResponse struct {
	Status        string `json:"status"`
	TestsCount    int    `json:"tests_count"`
	DBSizeBytes   int64  `json:"db_size_bytes"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tests, err := s.store.ListTests(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var dbSize int64
	row := s.store.DB().QueryRow("SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	if err := row.Scan(&dbSize); err != nil {
		if info, statErr := os.Stat("./pagesplit.db"); statErr == nil {
			dbSize = info.Size()
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		TestsCount:    len(tests),
		DBSizeBytes:   dbSize,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

// handleTestAPI dispatches /api/tests/{name}/{action}.
func (s *Server) handleTestAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/tests/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	testID, action := parts[0], parts[1]

	switch action {
	case "variant":
		s.handleVariant(w, r, testID)
	case "visit":
		s.handleVisit(w, r, testID)
	case "convert":
		s.handleConvert(w, r, testID)
	case "results":
		s.handleResults(w, r, testID)
	case "optimize":
		s.handleOptimize(w, r, testID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) handleVariant(w http.ResponseWriter, r *http.Request, testID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	visitorID := r.URL.Query().Get("visitor")
	if visitorID == "" {
		http.Error(w, "visitor parameter required", http.StatusBadRequest)
		return
	}

	variant := s.engine.VariantForVisitor(r.Context(), testID, visitorID)
	writeJSON(w, http.StatusOK, map[string]string{"variant": variant})
}

// VisitRequest records a visitor's first touch on a test. Metadata
// fields default from the request when omitted; a missing visitor_id
// is minted server-side and echoed back for the caller to persist.
type VisitRequest struct {
	VisitorID string `json:"visitor_id"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	Referrer  string `json:"referrer"`
}

type VisitResponse struct {
	VisitorID string         `json:"visitor_id"`
	Variant   string         `json:"variant"`
	Visitor   *visitorRecord `json:"visitor"`
}

type visitorRecord struct {
	TestID      string     `json:"test_id"`
	VisitorID   string     `json:"visitor_id"`
	Variant     string     `json:"variant_shown"`
	Converted   bool       `json:"converted"`
	VisitedAt   time.Time  `json:"visited_at"`
	ConvertedAt *time.Time `json:"converted_at,omitempty"`
}

func (s *Server) handleVisit(w http.ResponseWriter, r *http.Request, testID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req VisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.VisitorID == "" {
		req.VisitorID = uuid.NewString()
	}
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}
	if req.Referrer == "" {
		req.Referrer = r.Referer()
	}
	if req.IPAddress == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			req.IPAddress = host
		}
	}

	record, err := s.engine.RecordVisitor(r.Context(), testID, req.VisitorID, store.VisitorMeta{
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Referrer:  req.Referrer,
	})
	if err != nil {
		s.log.Error("record visitor failed", zap.String("test", testID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := VisitResponse{VisitorID: req.VisitorID, Variant: "a"}
	if record != nil {
		resp.Variant = record.VariantShown
		resp.Visitor = &visitorRecord{
			TestID:      record.TestName,
			VisitorID:   record.VisitorID,
			Variant:     record.VariantShown,
			Converted:   record.Converted,
			VisitedAt:   record.VisitedAt,
			ConvertedAt: record.ConvertedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type ConvertRequest struct {
	VisitorID      string         `json:"visitor_id"`
	ConversionData map[string]any `json:"conversion_data"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request, testID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.VisitorID == "" {
		http.Error(w, "visitor_id required", http.StatusBadRequest)
		return
	}

	ok, err := s.engine.RecordConversion(r.Context(), testID, req.VisitorID, req.ConversionData)
	if err != nil {
		s.log.Error("record conversion failed", zap.String("test", testID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request, testID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, err := s.engine.Results(r.Context(), testID)
	if err != nil {
		if errors.Is(err, engine.ErrTestNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Test not found"})
			return
		}
		s.log.Error("results failed", zap.String("test", testID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request, testID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, s.engine.AutoOptimize(r.Context(), testID))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
