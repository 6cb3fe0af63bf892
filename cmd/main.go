package main

import (
	"embed"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"github.com/noah-nozomu/gacha-app/internal/config"
	"github.com/noah-nozomu/gacha-app/internal/handlers"
	"github.com/noah-nozomu/gacha-app/internal/models"
	"github.com/noah-nozomu/gacha-app/internal/services"
	"github.com/noah-nozomu/gacha-app/internal/store"
)

//go:embed all:templates
var templateFS embed.FS

func main() {
	// 1. Load configuration from the environment (and .env if present)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	defer logger.Init("gacha", true, false, io.Discard).Close()

	// 2. Pick the table store backend: remote sheet API, local sqlite,
	//    or in-memory demo data
	tables, cleanup, err := newTableStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize table store: %v", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	// 3. Initialize the services
	gachaService := services.NewGachaService(tables, cfg.DrawRetries)
	sessionService := services.NewSessionService(time.Duration(cfg.SessionTTLMinutes) * time.Minute)

	// 4. Load HTML templates from the embedded filesystem
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		log.Fatalf("Failed to parse templates: %v", err)
	}

	// 5. Initialize the HTTP handler
	httpHandler := handlers.NewHTTPHandler(
		gachaService,
		sessionService,
		templates,
		cfg.RegistrationMaxRank,
		time.Duration(cfg.RevealDelayMillis)*time.Millisecond,
	)

	// 6. Set up the Gin router with the session cookie middleware
	r := gin.Default()
	r.Static("/assets", "./assets")
	r.Use(httpHandler.SessionMiddleware())
	httpHandler.RegisterRoutes(r)

	// 7. Start the background janitor to clean up inactive sessions
	go func() {
		for {
			time.Sleep(10 * time.Minute)
			sessionService.CleanUpInactiveSessions()
		}
	}()

	// 8. Run the server
	logger.Infof("Server starting on %s", cfg.Addr)
	if err := r.Run(cfg.Addr); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}

// newTableStore selects the store of record. The sheet API wins when
// configured, then sqlite; without either the kiosk runs on seeded
// in-memory data that vanishes on restart.
func newTableStore(cfg config.Config) (store.TableStore, func(), error) {
	switch {
	case cfg.SheetAPIURL != "":
		logger.Infof("Using sheet API store at %s", cfg.SheetAPIURL)
		return store.NewSheetClient(cfg.SheetAPIURL), nil, nil
	case cfg.SQLitePath != "":
		logger.Infof("Using sqlite store at %s", cfg.SQLitePath)
		s, err := store.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		logger.Info("No store configured, using in-memory demo catalog")
		m := store.NewMemory()
		m.Seed(store.CatalogTable, demoCatalog())
		return m, nil, nil
	}
}

// demoCatalog mirrors the production sheet with the baseline stock.
func demoCatalog() models.Table {
	return models.CatalogTable([]models.PrizeEntry{
		{Name: "豪華賞品セット", Rank: 1, Weight: 1, Stock: 5, Message: "スタッフまでお声がけください！", Image: "rank1.jpg"},
		{Name: "特製グッズ", Rank: 2, Weight: 4, Stock: 5, Message: "スタッフまでお声がけください！", Image: "rank2.jpg"},
		{Name: "割引クーポン", Rank: 3, Weight: 45, Stock: 50, Message: "次回ご来店時にご利用いただけます", Image: "rank3.jpg"},
		{Name: "ステッカー", Rank: 4, Weight: 150, Stock: 140, Message: "ご参加ありがとうございました！", Image: "rank4.jpg"},
	})
}
