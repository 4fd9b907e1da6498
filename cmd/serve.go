package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "starnotary/docs"
	"starnotary/pkg/accounts"
	"starnotary/pkg/config"
	"starnotary/pkg/logging"
	"starnotary/pkg/notify"
	"starnotary/pkg/sendemail"
	"starnotary/pkg/stars"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

type app struct {
	router     *gin.Engine
	hub        *notify.Hub
	dispatcher *notify.Dispatcher
}

// newApp wires services and handlers on top of st.
func newApp(c config.Config, st stores, logger *zap.Logger) app {
	if c.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	emailService := sendemail.NewEmailService(c.SendGrid, logger)

	accountsService := accounts.NewAccountService(st.accounts)
	accountsHandler := accounts.NewAccountHandler(accountsService)

	hub := notify.NewHub()
	dispatcher := notify.NewDispatcher(hub, accountsService, emailService, logger)
	notifyHandler := notify.NewHandler(hub, logger)

	starsService := stars.NewStarService(st.stars, dispatcher, logger)
	starsHandler := stars.NewStarHandler(starsService)

	router := gin.New()
	router.Use(logging.GinLogger(logger), gin.Recovery())

	corsCfg := cors.Config{
		AllowOrigins:     c.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "WWW-Authenticate"},
		AllowCredentials: c.CORS.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsCfg))

	accountsHandler.RegisterRoutes(router)
	requireCaller := accounts.RequireCaller(accountsService)
	starsHandler.RegisterRoutes(router, requireCaller)
	notifyHandler.RegisterRoutes(router, requireCaller)

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return app{router: router, hub: hub, dispatcher: dispatcher}
}

func serve(ctx context.Context, c config.Config, logger *zap.Logger) error {
	st, err := openStores(ctx, c.Store, logger)
	if err != nil {
		return err
	}
	defer st.close()

	a := newApp(c, st, logger)
	defer a.hub.Close()
	// pending sale e-mails still read the account store
	defer a.dispatcher.Wait()

	srv := &http.Server{
		Addr:              ":" + c.Port,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var certFile, keyFile string
	if c.TLS.EnableTLS {
		tlsConfig, cf, kf, err := buildTLSConfig(c.TLS)
		if err != nil {
			return fmt.Errorf("TLS setup error: %w", err)
		}
		srv.TLSConfig = tlsConfig
		certFile, keyFile = cf, kf
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", c.TLS.EnableTLS),
			zap.String("store", c.Store.Driver))

		var err error
		if c.TLS.EnableTLS {
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server exiting")
	return nil
}
