// Package server runs the HTTP surface: a gorilla/mux outer router carrying
// CORS, health and static files, with the gin JSON API mounted under /api/.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lab-notebook/notebook_go/internal/app"
)

// ServerCmd starts the notebook HTTP server.
var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the notebook HTTP server",
	Long: `Run the notebook HTTP server.

The JSON API lives under /api/ (sessions, ask, uploads, experiments,
projects, events); /health answers liveness probes and anything else is
served from ./static/ for a frontend.`,
	RunE: runServer,
}

func init() {
	ServerCmd.Flags().String("host", "0.0.0.0", "listen host")
	ServerCmd.Flags().Int("port", 8080, "listen port")
	ServerCmd.Flags().StringSlice("cors-origins", []string{"*"}, "CORS allowed origins")
	ServerCmd.Flags().String("static-dir", "./static", "frontend static files directory")
	ServerCmd.Flags().String("data-root", "data/projects", "directory new project roots are created under")

	viper.BindPFlag("host", ServerCmd.Flags().Lookup("host"))
	viper.BindPFlag("port", ServerCmd.Flags().Lookup("port"))
	viper.BindPFlag("cors-origins", ServerCmd.Flags().Lookup("cors-origins"))
	viper.BindPFlag("static-dir", ServerCmd.Flags().Lookup("static-dir"))
	viper.BindPFlag("data-root", ServerCmd.Flags().Lookup("data-root"))
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := app.New(ctx, app.OptionsFromViper())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Notebook.StartWorkers(ctx); err != nil {
		return fmt.Errorf("failed to start conversion workers: %w", err)
	}

	api := &apiServer{
		app:      a,
		dataRoot: viper.GetString("data-root"),
	}

	router := mux.NewRouter()
	router.Use(corsMiddleware(viper.GetStringSlice("cors-origins")))
	router.HandleFunc("/health", handleHealth).Methods("GET")
	router.PathPrefix("/api/").Handler(api.ginEngine())
	router.PathPrefix("/").Handler(http.FileServer(http.Dir(viper.GetString("static-dir"))))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", viper.GetString("host"), viper.GetInt("port")),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  300 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	a.Logger.Infof("notebook server listening on %s", srv.Addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case s := <-sig:
		a.Logger.Infof("received %s, shutting down", s)
	}

	// Workers first so no conversion writes race the teardown.
	a.Notebook.StopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	a.Logger.Infof("server shutdown complete")
	return nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","time":%q}`, time.Now().UTC().Format(time.RFC3339))
}

func corsMiddleware(origins []string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			for _, allowed := range origins {
				if allowed == "*" || allowed == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
