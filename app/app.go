package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/carebridge/realtime/core"
	"github.com/carebridge/realtime/ws"
)

// App wires the transport hub, the coordination core and the dispatcher
// into a running server.
type App struct {
	config  *Config
	context context.Context
	server  *http.Server
	logger  *slog.Logger
	router  chi.Router

	hub        *ws.ConnHub
	emitter    *hubEmitter
	registry   *core.Registry
	rooms      *core.RoomDirectory
	relay      *core.Relay
	video      *core.VideoManager
	dispatcher *Dispatcher

	exit chan int

	cleanupFuncs []func(context.Context)
}

func New(ctx context.Context, config *Config) *App {
	app := &App{
		exit: make(chan int),
	}
	if ctx == nil {
		ctx, _ = signal.NotifyContext(
			context.Background(),
			syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	}
	app.context = ctx

	if config == nil {
		var err error
		config, err = LoadConfig()
		if err != nil {
			failed(1, "failed to load config: %v\n", err)
		}
	}
	if err := config.Validate(); err != nil {
		failed(1, FormatValidationErrors(err))
	}
	app.config = config

	app.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}))

	app.hub = ws.New(
		ws.NewWSConnFactory(ws.WithConnLogger(app.logger)),
		NewWSAuthenticator(app.config.Auth.Secret),
		ws.WithLogger(app.logger),
		ws.WithBaseContext(app.context),
	)

	app.emitter = newHubEmitter(app.hub)
	app.registry = core.NewRegistry(app.emitter, app.config.Presence.DisconnectGrace, app.logger)
	app.emitter.BindResolver(app.registry)
	app.rooms = core.NewRoomDirectory()
	app.relay = core.NewRelay(app.registry, app.rooms, app.emitter, app.logger)
	app.video = core.NewVideoManager(app.rooms, app.emitter, app.config.Video.EndedPurgeDelay, app.logger)

	app.dispatcher = NewDispatcher(app.registry, app.relay, app.video, app.emitter, app.logger)
	app.dispatcher.Bind(app.hub)

	// once the grace window passes without a reconnect, the identity's chat
	// subscriptions go with it
	app.registry.OnRemoved(func(identity core.Identity) {
		for _, roomID := range app.rooms.RoomsOf(identity.UserID) {
			app.relay.LeaveRoom(roomID, identity.UserID)
		}
	})

	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	router.Get("/ws", app.hub.ServeHTTP)
	router.Get("/healthz", app.healthz)
	app.router = router

	app.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", app.config.Hostname, app.config.Port),
		Handler: app.router,
		BaseContext: func(listener net.Listener) context.Context {
			return app.context
		},
	}

	return app
}

func (app *App) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","connections":%d}`, app.hub.Len())
}

func (app *App) Start() {
	app.hub.Start()
	app.AddCleanupFunc(func(ctx context.Context) {
		app.hub.Close()
	})

	// listen for shutdown signal
	go func() {
		<-app.context.Done()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()

		done := make(chan struct{})
		go func() {
			for _, f := range app.cleanupFuncs {
				f(closeCtx)
			}
			close(done)
		}()

		select {
		case <-done:
			app.logger.Info("app shutdown gracefully")
			app.exit <- 0
		case <-closeCtx.Done():
			app.logger.Info("app shutdown timed out")
			app.exit <- 1
		}
	}()

	app.AddCleanupFunc(func(ctx context.Context) {
		app.server.Shutdown(ctx)
	})

	app.logger.Info(fmt.Sprintf("app running on: %s:%d",
		app.config.Hostname, app.config.Port))

	err := app.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		failed(1, "server error: %v\n", err)
	}

	code := <-app.exit
	os.Exit(code)
}

func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}

func failed(code int, s string, args ...interface{}) {
	fmt.Printf(s, args...)
	os.Exit(code)
}
