package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pharmhunter/internal/server"
)

var (
	servePort     int
	serveReadOnly bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the history and hunt API over HTTP",
	Long:  "Serves company history, statistics, round plans and hunts. With --read-only no provider keys are needed and POST /api/hunts answers 503.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv, closeEnv, err := buildServer(ctx)
		if err != nil {
			return err
		}
		defer closeEnv()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.Bool("read_only", serveReadOnly))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		// Hunts run on ctx, so they are already cancelled; wait for them to
		// record what they have.
		srv.Wait()
		return nil
	},
}

// buildServer wires the API. Hunts started over HTTP run on ctx and report
// stage changes back to the server.
func buildServer(ctx context.Context) (*server.Server, func(), error) {
	opts := []server.Option{
		server.WithCORSOrigins(cfg.Server.CORSOrigins),
		server.WithDefaults(huntDefaults(cfg)),
		server.WithBaseContext(ctx),
	}

	if serveReadOnly {
		st, err := openStore(ctx)
		if err != nil {
			return nil, nil, err
		}
		p, err := loadPlanner()
		if err != nil {
			_ = st.Close()
			return nil, nil, err
		}
		return server.New(st, nil, p, opts...), func() { _ = st.Close() }, nil
	}

	var srv *server.Server
	env, err := initHunt(ctx, "serve", huntHooks{
		stage: func(huntID, stage string) { srv.StageHook(huntID, stage) },
	})
	if err != nil {
		return nil, nil, err
	}
	srv = server.New(env.Store, env.Runner, env.Planner, opts...)
	return srv, env.Close, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveReadOnly, "read-only", false, "serve history only; do not accept hunts")
	rootCmd.AddCommand(serveCmd)
}
