package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/wabotai/wabot/internal/config"
	"github.com/wabotai/wabot/internal/dispatch"
	"github.com/wabotai/wabot/internal/document"
	"github.com/wabotai/wabot/internal/gemini"
	"github.com/wabotai/wabot/internal/handlers"
	"github.com/wabotai/wabot/internal/logger"
	"github.com/wabotai/wabot/internal/server"
	"github.com/wabotai/wabot/internal/whatsapp"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideWhatsAppClient,
			provideGeminiService,
			provideRenderer,
			provideDispatcher,
			provideRegistrar(provideWebhookHandler),
			provideRegistrar(handlers.NewPingHandler),
			provideServer,
		),
		fx.Invoke(startServer),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideRegistrar(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Registrar)),
		fx.ResultTags(`group:"registrars"`),
	)
}

func provideConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideWhatsAppClient(log *slog.Logger, cfg config.Config) *whatsapp.Client {
	return whatsapp.NewClient(log, cfg.WhatsApp)
}

func provideGeminiService(log *slog.Logger, cfg config.Config) (*gemini.Service, error) {
	return gemini.NewService(context.Background(), log, cfg.Gemini, cfg.Bot)
}

func provideRenderer(log *slog.Logger) *document.Renderer {
	return document.NewRenderer(log)
}

// chatStarter and docNormalizer bridge concrete constructors to the
// dispatcher's interfaces.
type chatStarter struct{ svc *gemini.Service }

func (s chatStarter) StartChat() dispatch.Chat { return s.svc.NewConversation() }

type docNormalizer struct{ r *document.Renderer }

func (n docNormalizer) Pages(data []byte) (dispatch.PageSource, error) { return n.r.Pages(data) }

func provideDispatcher(log *slog.Logger, client *whatsapp.Client, svc *gemini.Service, renderer *document.Renderer, cfg config.Config) *dispatch.Dispatcher {
	return dispatch.NewDispatcher(log, client, docNormalizer{r: renderer}, svc, chatStarter{svc: svc}, client, cfg.Bot)
}

func provideWebhookHandler(log *slog.Logger, dispatcher *dispatch.Dispatcher, cfg config.Config) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, dispatcher, cfg.WhatsApp)
}

type serverParams struct {
	fx.In
	Logger     *slog.Logger
	Config     config.Config
	Registrars []server.Registrar `group:"registrars"`
}

type wabotServer struct {
	echo *echo.Echo
	addr string
}

func (s *wabotServer) Start() error                   { return s.echo.Start(s.addr) }
func (s *wabotServer) Stop(ctx context.Context) error { return s.echo.Shutdown(ctx) }

func provideServer(params serverParams) *wabotServer {
	addr := params.Config.Server.Addr
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	return &wabotServer{
		echo: server.New(params.Logger, params.Registrars...),
		addr: addr,
	}
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *wabotServer, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("starting server", slog.String("addr", srv.addr))
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
