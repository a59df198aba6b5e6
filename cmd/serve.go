package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/datagenie/internal/model"
	"github.com/sells-group/datagenie/internal/pipeline"
	"github.com/sells-group/datagenie/internal/resilience"
	"github.com/sells-group/datagenie/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ask API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env.Store, env.Pipeline.Run, env.Breakers, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// askRequest is the POST /v1/ask body.
type askRequest struct {
	Question string `json:"question"`
}

// askResponse wraps the final state with the error of a failed run.
type askResponse struct {
	State *model.PipelineState `json:"state,omitempty"`
	Error string               `json:"error,omitempty"`
}

// healthResponse reports store reachability and oracle breaker states.
type healthResponse struct {
	Status string            `json:"status"`
	Error  string            `json:"error,omitempty"`
	Oracle map[string]string `json:"oracle,omitempty"`
}

// newRouter builds the HTTP API. ask runs synchronously inside the request.
// breakers may be nil.
func newRouter(st store.Store, ask askFunc, breakers *resilience.Breakers, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		if breakers != nil {
			resp.Oracle = make(map[string]string)
			for name, state := range breakers.States() {
				resp.Oracle[name] = state.String()
			}
			if !breakers.Healthy() {
				resp.Status = "degraded"
			}
		}
		if err := st.Ping(r.Context()); err != nil {
			resp.Status = "unavailable"
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ask", func(w http.ResponseWriter, r *http.Request) {
			var req askRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			question := strings.TrimSpace(req.Question)
			if question == "" {
				writeError(w, http.StatusBadRequest, "question is required")
				return
			}

			state, err := ask(r.Context(), question)
			if err != nil {
				code := http.StatusInternalServerError
				if eris.Is(err, pipeline.ErrClassificationParse) {
					code = http.StatusUnprocessableEntity
				}
				zap.L().Warn("ask failed", zap.String("question", question), zap.Error(err))
				writeJSON(w, code, askResponse{State: state, Error: err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, askResponse{State: state})
		})

		r.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			filter := store.RunFilter{
				Status:   model.RunStatus(q.Get("status")),
				Question: q.Get("q"),
				Limit:    queryInt(q.Get("limit")),
				Offset:   queryInt(q.Get("offset")),
			}
			runs, err := st.ListRuns(r.Context(), filter)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if runs == nil {
				runs = []model.Run{}
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
			run, err := st.GetRun(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				if eris.Is(err, store.ErrNotFound) {
					writeError(w, http.StatusNotFound, "run not found")
					return
				}
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, run)
		})

		r.Get("/results", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			filter := store.ResultFilter{
				RunID:    q.Get("run_id"),
				Question: q.Get("q"),
				Limit:    queryInt(q.Get("limit")),
				Offset:   queryInt(q.Get("offset")),
			}
			recs, err := st.ListResults(r.Context(), filter)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if recs == nil {
				recs = []model.ResultRecord{}
			}
			writeJSON(w, http.StatusOK, recs)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// queryInt parses a non-negative integer query value, returning 0 when absent
// or invalid.
func queryInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
