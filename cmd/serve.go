package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status and batch-submission server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var running atomic.Bool

		r := chi.NewRouter()
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			snap := env.Job.Snapshot()
			writeJSON(w, http.StatusOK, map[string]any{
				"running": running.Load(),
				"job":     snap,
			})
		})

		r.Post("/verify", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Industry     string                 `json:"industry"`
				Observations []model.RawObservation `json:"observations"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if len(body.Observations) == 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "observations are required"})
				return
			}
			if !running.CompareAndSwap(false, true) {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "a batch is already running"})
				return
			}

			// Run the batch asynchronously; progress is visible on /status.
			go func() {
				defer running.Store(false)
				stats, err := env.Pipeline.Run(ctx, body.Industry, body.Observations)
				if err != nil {
					zap.L().Error("batch failed", zap.String("industry", body.Industry), zap.Error(err))
					return
				}
				zap.L().Info("batch complete",
					zap.String("industry", body.Industry),
					zap.Int("saved", stats.Saved),
					zap.Int("registry_matches", stats.RegistryMatches),
				)
			}()

			writeJSON(w, http.StatusAccepted, map[string]any{
				"status":       "accepted",
				"industry":     body.Industry,
				"observations": len(body.Observations),
			})
		})

		r.Post("/stop", func(w http.ResponseWriter, req *http.Request) {
			env.Job.RequestStop()
			writeJSON(w, http.StatusOK, map[string]string{"status": "stop requested"})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go shutdownOnDone(ctx, srv, 10*time.Second)

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// shutdownOnDone drains the server once ctx is cancelled. The drain gets
// its own deadline: the triggering context is already dead, and passing
// it to Shutdown would abort in-flight requests instead of finishing them.
func shutdownOnDone(ctx context.Context, srv *http.Server, timeout time.Duration) {
	<-ctx.Done()
	zap.L().Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
