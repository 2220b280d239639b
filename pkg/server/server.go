// Package server exposes the writing assistant over HTTP and MCP.
//
// Every JSON endpoint answers {"status": "success", "result": ...} or
// {"status": "error", "error": ...}.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quill-ai/go-quill/pkg/chains"
	"github.com/quill-ai/go-quill/pkg/ingest"
	"github.com/quill-ai/go-quill/pkg/middleware/observability"
	"github.com/quill-ai/go-quill/pkg/middleware/retrieval"
	"github.com/quill-ai/go-quill/pkg/quill"
	"github.com/quill-ai/go-quill/pkg/research"
)

// Version is reported by the MCP server.
const Version = "0.1.0"

// defaultMaxBodyBytes bounds request bodies when Services.MaxBodyBytes is
// unset. Manuscripts are sent whole.
const defaultMaxBodyBytes = 8 << 20

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// Services are the components the server routes to. Nil services get no
// route.
type Services struct {
	Syncer     *ingest.Syncer
	Research   *research.Agent
	Chat       *chains.Chat
	Planner    *chains.Planner
	Feedback   *chains.Feedback
	UserModify *chains.UserModify
	AutoModify *chains.AutoModify
	Retriever  *retrieval.Retriever

	Telemetry *observability.Telemetry
	Health    *observability.HealthCheckRegistry
	// Metrics serves /metrics, usually PrometheusProvider.Handler().
	Metrics http.Handler
	Logger  *slog.Logger

	MaxBodyBytes int64
}

// Server is the HTTP surface.
type Server struct {
	services Services
	mux      *http.ServeMux
}

// New builds the routes for services.
func New(services Services) *Server {
	s := &Server{services: services, mux: http.NewServeMux()}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	svc := s.services
	if svc.Syncer != nil {
		s.handle("POST /v1/documents/{tenant}", s.handleDocument)
	}
	if svc.Research != nil {
		s.handle("POST /v1/research", s.handleResearch)
	}
	if svc.Chat != nil {
		s.handle("POST /v1/chat", s.handleChat)
	}
	if svc.Planner != nil {
		s.handle("POST /v1/planner", s.handlePlanner)
	}
	if svc.Feedback != nil {
		s.handle("POST /v1/feedback", s.handleEdit(svc.Feedback))
	}
	if svc.UserModify != nil {
		s.handle("POST /v1/modify/user", s.handleEdit(svc.UserModify))
	}
	if svc.AutoModify != nil {
		s.handle("POST /v1/modify/auto", s.handleEdit(svc.AutoModify))
	}
	if svc.Health != nil {
		s.mux.Handle("GET /healthz", svc.Health.Handler())
	}
	if svc.Metrics != nil {
		s.mux.Handle("GET /metrics", svc.Metrics)
	}

	mcpServer := NewMCPServer(svc)
	s.mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpServer
	}, nil))
}

type apiFunc func(w http.ResponseWriter, r *http.Request) error

// handle registers fn with request IDs, logging, error responses and
// metrics around it.
func (s *Server) handle(pattern string, fn apiFunc) {
	route := pattern[strings.IndexByte(pattern, ' ')+1:]
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		if s.services.Logger != nil {
			ctx = quill.WithLogger(ctx, s.services.Logger)
		}
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx = quill.WithRequestID(ctx, id)
		}
		ctx = quill.EnsureRequestID(ctx)
		w.Header().Set("X-Request-ID", quill.RequestID(ctx))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		if err := fn(rec, r.WithContext(ctx)); err != nil {
			if rec.wroteHeader {
				quill.LogError(ctx, "request failed after response started", err)
			} else {
				s.writeError(ctx, rec, err)
			}
		}

		elapsed := time.Since(start)
		s.services.Telemetry.HTTPDone(ctx, route, rec.status, elapsed)
		quill.LogDebug(ctx, "request served", "route", route, "status", rec.status, "duration", elapsed)
	}))
}

type response struct {
	Status  string   `json:"status"`
	Result  any      `json:"result,omitempty"`
	Sources []string `json:"sources,omitempty"`
	Mode    string   `json:"mode,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

func success(w http.ResponseWriter, result any) error {
	return writeJSON(w, http.StatusOK, response{Status: "success", Result: result})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, chains.ErrInvalidInput),
		errors.Is(err, retrieval.ErrInvalidTenant):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage shows input errors as they are and hides everything else
// behind the public message.
func clientMessage(err error, status int) string {
	if status == http.StatusBadRequest {
		return err.Error()
	}
	return quill.PublicMessage(err)
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		quill.LogError(ctx, "request failed", err, "status", status)
	} else {
		quill.LogInfo(ctx, "request rejected", "status", status, "error", err)
	}
	if writeErr := writeJSON(w, status, response{Status: "error", Error: clientMessage(err, status)}); writeErr != nil {
		quill.LogWarn(ctx, "failed to write error response", "error", writeErr)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	limit := s.services.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body := http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

type documentRequest struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) error {
	var req documentRequest
	if err := s.decode(w, r, &req); err != nil {
		return err
	}
	result, err := s.services.Syncer.ProcessDocument(r.Context(), r.PathValue("tenant"), req.Content, req.Metadata)
	if err != nil {
		return err
	}
	return success(w, result)
}

type researchRequest struct {
	UserSetting     chains.Settings `json:"user_setting"`
	OriginalContent string          `json:"original_content,omitempty"`
	Query           string          `json:"query"`
	SessionID       string          `json:"session_id,omitempty"`
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) error {
	var req researchRequest
	if err := s.decode(w, r, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Query) == "" {
		return badRequest("query is required")
	}
	answer, err := s.services.Research.RunSession(r.Context(), req.SessionID, req.UserSetting.XML(), req.OriginalContent, req.Query)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, response{
		Status:  "success",
		Result:  answer.Output,
		Sources: answer.Sources,
		Mode:    string(answer.Mode),
	})
}

type chatRequest struct {
	UserSetting chains.Settings `json:"user_setting"`
	Query       string          `json:"query,omitempty"`
	UserInput   string          `json:"user_input"`
	SessionID   string          `json:"session_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) error {
	var req chatRequest
	if err := s.decode(w, r, &req); err != nil {
		return err
	}
	out, err := s.services.Chat.Run(r.Context(), chains.ChatInput{
		UserSetting: req.UserSetting.XML(),
		Query:       req.Query,
		UserInput:   req.UserInput,
		Session:     req.SessionID,
	})
	if err != nil {
		return err
	}
	return success(w, out)
}

type plannerRequest struct {
	Genre   string `json:"genre"`
	Logline string `json:"logline"`
	Prompt  string `json:"prompt"`
	Section string `json:"section"`
}

func (s *Server) handlePlanner(w http.ResponseWriter, r *http.Request) error {
	var req plannerRequest
	if err := s.decode(w, r, &req); err != nil {
		return err
	}
	out, err := s.services.Planner.Run(r.Context(), chains.PlannerInput(req))
	if err != nil {
		return err
	}
	return success(w, out)
}

type editRequest struct {
	UserSetting chains.Settings `json:"user_setting"`
	TenantID    string          `json:"tenant_id"`
	Query       string          `json:"query"`
	HowPolish   string          `json:"how_polish,omitempty"`
}

// editor is implemented by the chains that work on a manuscript passage.
type editor interface {
	Run(ctx context.Context, in chains.EditInput) (string, error)
}

func (s *Server) handleEdit(chain editor) apiFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req editRequest
		if err := s.decode(w, r, &req); err != nil {
			return err
		}
		in := chains.EditInput{
			UserSetting: req.UserSetting.XML(),
			TenantID:    req.TenantID,
			Query:       req.Query,
			HowPolish:   req.HowPolish,
		}
		out, err := chain.Run(quill.WithTenant(r.Context(), req.TenantID), in)
		if err != nil {
			return err
		}
		return success(w, out)
	}
}

// statusRecorder remembers the status code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(p)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
