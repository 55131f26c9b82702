package router

import (
	feedsvc "kbs-backend/internal/application/feed"
	"kbs-backend/internal/application/preferences"
	storysvc "kbs-backend/internal/application/stories"
	"kbs-backend/internal/config"
	"kbs-backend/internal/infrastructure/cache"
	"kbs-backend/internal/infrastructure/database"
	feedhandler "kbs-backend/internal/interfaces/handlers/feed"
	healthhandler "kbs-backend/internal/interfaces/handlers/health"
	storyhandler "kbs-backend/internal/interfaces/handlers/stories"
	"kbs-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Deps are the long-lived resources behind the app; main pings and closes them.
type Deps struct {
	DB      *gorm.DB
	Rdb     *redis.Client
	Stories *storysvc.Service
}

// CreateApp opens the configured backends and registers every route.
func CreateApp(cfg *config.Config) (*fiber.App, *Deps, error) {
	deps := &Deps{}

	if cfg.DatabaseURL != "" {
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		deps.DB = db
	}
	if cfg.RedisURL != "" {
		rdb, err := cache.Open(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		deps.Rdb = rdb
	}
	return Build(cfg, deps), deps, nil
}

// Build assembles services and routes from already-open deps. Either backend
// may be nil: no DB means an empty feed and tray, no Redis means in-memory
// preferences and no feed snapshots.
func Build(cfg *config.Config, deps *Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())
	app.Use(middleware.HealthMarker(deps.Rdb))

	var prefs preferences.Store = preferences.NewMemoryStore()
	if deps.Rdb != nil {
		prefs = &preferences.RedisStore{Rdb: deps.Rdb}
	}

	fs := &feedsvc.Service{
		Prefs:           prefs,
		DefaultDistance: cfg.FeedDefaultDistance,
	}
	if deps.DB != nil {
		src := &feedsvc.GormSource{DB: deps.DB}
		fs.Source = src
		fs.Scopes = src
	}
	if deps.Rdb != nil {
		fs.Snapshots = &feedsvc.RedisSnapshotCache{Rdb: deps.Rdb, TTL: cfg.FeedSnapshotTTL}
	}

	if deps.Stories == nil {
		deps.Stories = &storysvc.Service{
			Communities: storysvc.NoCommunities{},
			Prefs:       prefs,
			Clock:       storysvc.SystemClock{},
			Scheduler:   storysvc.TickerScheduler{Interval: cfg.StoryTickInterval},
			IdleTTL:     cfg.StoryIdleTTL,
		}
		if deps.DB != nil {
			deps.Stories.Communities = &storysvc.GormCommunitySource{DB: deps.DB}
		}
	}

	hh := &healthhandler.Handlers{Rdb: deps.Rdb, Sessions: deps.Stories}
	if deps.DB != nil {
		hh.DB = &gormDBPinger{db: deps.DB}
	}
	app.Get("/health/json", hh.JSON)

	fh := &feedhandler.Handlers{Service: fs}
	api := app.Group("/api/v1")
	api.Get("/circles", fh.ListCircles)

	api.Get("/feed", middleware.RequireViewer(), fh.GetFeed)
	api.Put("/feed/scope", middleware.RequireViewer(), fh.SelectScope)

	sh := &storyhandler.Handlers{Service: deps.Stories}
	sg := api.Group("/stories", middleware.RequireViewer())
	sg.Get("/tray", sh.GetTray)
	sg.Post("/sessions", sh.OpenSession)
	sg.Get("/sessions/:id", sh.GetSession)
	sg.Post("/sessions/:id/events", sh.SendEvent)
	sg.Delete("/sessions/:id", sh.CloseSession)

	return app
}
