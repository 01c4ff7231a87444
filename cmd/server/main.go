package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/eclore/eclore/internal/api"
	"github.com/eclore/eclore/internal/catalog"
	dbstore "github.com/eclore/eclore/internal/db"
	"github.com/eclore/eclore/internal/llm"
	"github.com/eclore/eclore/internal/middleware"
	"github.com/eclore/eclore/internal/services"
	"github.com/eclore/eclore/internal/utils"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	addr := utils.SafeEnv("ECLORE_ADDR", ":8080")

	cat, err := catalog.Load()
	if err != nil {
		log.Fatalw("load catalog", "error", err)
	}

	store, closeDB := openStore(log)
	if closeDB != nil {
		defer closeDB()
	}

	var gen services.ReplyGenerator
	if key := os.Getenv("ECLORE_GEMINI_API_KEY"); key != "" {
		client, err := llm.NewGeminiClient(context.Background(), key, os.Getenv("ECLORE_GEMINI_MODEL"), cat)
		if err != nil {
			log.Fatalw("init gemini client", "error", err)
		}
		gen = client
	} else {
		log.Warnw("ECLORE_GEMINI_API_KEY not set, chat replies fall back to the static message")
	}

	orch := services.NewOrchestrator(chatStore(store), gen, cat, log)
	rec := services.NewRecommendationService(recStore(store), cat, log)
	quest := services.NewQuestionnaireService(questStore(store), orch, cat, log)
	onboard := services.NewOnboardingService(onboardStore(store), orch, quest, cat, log)
	focus := services.NewFocusService(focusStore(store), orch, rec, cat, log)
	checkin := services.NewCheckInService(checkinStore(store), rec, log)
	sessions := services.NewSessionManager(sessionStore(store), cat, log)
	auth := services.NewAuthService(authStore(store), middleware.SignToken)

	reminder := services.NewReminder(sessions, orch, log)
	if spec := utils.SafeEnv("ECLORE_REMINDER_CRON", "0 18 * * *"); spec != "off" {
		if err := reminder.Start(spec); err != nil {
			log.Fatalw("schedule reminder", "spec", spec, "error", err)
		}
		defer reminder.Stop()
	}

	mux := http.NewServeMux()
	api.NewRouter(api.RouterConfig{
		Auth:     auth,
		Sessions: sessions,
		Orch:     orch,
		Onboard:  onboard,
		Quest:    quest,
		Focus:    focus,
		Rec:      rec,
		CheckIn:  checkin,
		Insights: services.NewInsightsService(cat),
		Catalog:  cat,
		Log:      log,
	}).Register(mux)

	handler := middleware.NoStore(middleware.SecureHeaders(middleware.CORS(middleware.WithAuth(mux))))

	log.Infow("eclore server listening", "addr", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalw("server error", "error", err)
	}
}

// openStore opens the SQLite store at ECLORE_DB_PATH. When opening fails the
// server still comes up with no persistence; conversations then live only in
// memory.
func openStore(log *zap.SugaredLogger) (*dbstore.SQLiteStore, func()) {
	path := utils.SafeEnv("ECLORE_DB_PATH", "data/eclore.db")
	if path == "off" {
		log.Warnw("persistence disabled, sessions are memory-only")
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Errorw("create data dir, running memory-only", "path", path, "error", err)
		return nil, nil
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(path))
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		log.Errorw("open sqlite, running memory-only", "path", path, "error", err)
		return nil, nil
	}
	if err := dbstore.RunMigrations(conn); err != nil {
		log.Errorw("run migrations, running memory-only", "path", path, "error", err)
		_ = conn.Close()
		return nil, nil
	}
	store, err := dbstore.NewSQLiteStore(conn)
	if err != nil {
		log.Errorw("init sqlite store, running memory-only", "path", path, "error", err)
		_ = conn.Close()
		return nil, nil
	}
	log.Infow("sqlite store ready", "path", path)
	return store, func() { _ = conn.Close() }
}

// The services take nil store interfaces to run without persistence; a typed
// nil pointer would dodge their nil checks, hence these helpers.

func chatStore(s *dbstore.SQLiteStore) services.ChatStore {
	if s == nil {
		return nil
	}
	return s
}

func questStore(s *dbstore.SQLiteStore) services.QuestionnaireStore {
	if s == nil {
		return nil
	}
	return s
}

func onboardStore(s *dbstore.SQLiteStore) services.OnboardingStore {
	if s == nil {
		return nil
	}
	return s
}

func focusStore(s *dbstore.SQLiteStore) services.FocusStore {
	if s == nil {
		return nil
	}
	return s
}

func checkinStore(s *dbstore.SQLiteStore) services.CheckInStore {
	if s == nil {
		return nil
	}
	return s
}

func recStore(s *dbstore.SQLiteStore) services.RecommendationStore {
	if s == nil {
		return nil
	}
	return s
}

func sessionStore(s *dbstore.SQLiteStore) services.SessionStore {
	if s == nil {
		return nil
	}
	return s
}

func authStore(s *dbstore.SQLiteStore) services.AuthStore {
	if s == nil {
		return newMemAuthStore()
	}
	return s
}
