package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maestro/internal/apihandlers"
	"maestro/internal/app"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus" // Use logrus
)

var (
	serveAddr string // Listen address
	servePort int    // Listen port
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Maestro HTTP API server",
	Long: `Starts the HTTP server together with the job worker and the cleanup
loop. The worker count is fixed at one because the inference device does
not support concurrent jobs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		if serveAddr == "" {
			serveAddr = appInstance.Config.Server.Host
		}
		if servePort == 0 {
			servePort = appInstance.Config.Server.Port
		}

		router := buildRouter(appInstance)

		listenAddr := fmt.Sprintf("%s:%d", serveAddr, servePort)
		srv := &http.Server{Addr: listenAddr, Handler: router}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := appInstance.Cleanup.Start(); err != nil {
			return fmt.Errorf("failed to start cleanup loop: %w", err)
		}
		defer appInstance.Cleanup.Stop()

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			appInstance.Worker.Run(gctx)
			return nil
		})

		g.Go(func() error {
			log.Infof("Starting Maestro API server on http://%s", listenAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("failed to run API server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})

		if err := g.Wait(); err != nil {
			log.Errorf("server stopped with error: %v", err)
			return err
		}
		log.Println("Maestro API server stopped.")
		return nil
	},
}

func buildRouter(appInstance *app.App) *gin.Engine {
	router := gin.Default() // Includes logger and recovery middleware
	RegisterRoutes(router, apihandlers.NewAPIHandler(appInstance))
	return router
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (defaults to config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (defaults to config)")
}

// Route registration lives here so tests can build the same router the
// server runs.
func RegisterRoutes(router *gin.Engine, h *apihandlers.APIHandler) {
	router.POST("/release_task", h.ReleaseTaskHandler)
	router.POST("/query_result", h.QueryResultHandler)
	router.GET("/health", h.HealthHandler)

	v1 := router.Group("/v1")
	{
		v1.GET("/stats", h.StatsHandler)
		v1.GET("/tasks/:id/events", h.EventsHandler)
	}
}
