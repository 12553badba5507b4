package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mbecker/reel/internal/config"
	"github.com/mbecker/reel/internal/domain"
	"github.com/mbecker/reel/internal/download"
	"github.com/mbecker/reel/internal/engine"
	"github.com/mbecker/reel/internal/feed"
	"github.com/mbecker/reel/internal/log"
	"github.com/mbecker/reel/internal/player"
	"github.com/mbecker/reel/internal/store"
	"github.com/mbecker/reel/internal/tui"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	var showVersion bool
	var feedPath string
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.StringVar(&feedPath, "feed", "", "path to a JSON feed file (omit for the built-in demo feed)")
	flag.Parse()

	if showVersion {
		fmt.Printf("reel %s\n", Version)
		return
	}

	if err := run(feedPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(feedPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := log.Setup(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.Null()
	}
	slog.SetDefault(logger)

	logger.Info("starting reel", "version", Version)

	groups, err := loadFeed(feedPath)
	if err != nil {
		return err
	}

	viewed, err := store.NewViewedStore(filepath.Join(cfg.Cache.Dir, "state"))
	if err != nil {
		return fmt.Errorf("failed to open viewed store: %w", err)
	}
	defer viewed.Close()

	hydrateViewed(groups, viewed, cfg.User.ID, logger)

	feedSvc := feed.NewService(cfg.Playback.FeedExpiry, logger)
	groups, err = feedSvc.Assemble(groups, time.Now())
	if err != nil {
		return fmt.Errorf("invalid feed: %w", err)
	}
	if len(groups) == 0 {
		fmt.Println("Nothing to play: the feed is empty or fully expired.")
		return nil
	}

	downloads, err := download.NewManager(cfg.DownloadConfig(), cfg.StalePolicy(), nil, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to create download manager: %w", err)
	}

	eng, err := engine.NewEngine(groups, downloads, engine.Options{
		UserID:        cfg.User.ID,
		MaxRetries:    cfg.Playback.MaxRetries,
		TickInterval:  cfg.Playback.TickInterval,
		PrefetchAhead: cfg.Playback.PrefetchAhead,
		PrefetchLimit: cfg.Playback.PrefetchLimit,
		Player:        player.NewLauncher(cfg.Player.Command, cfg.Player.Args, logger),
		Viewed:        viewed,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Dispose()

	program := tea.NewProgram(tui.New(eng, logger), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}

func loadFeed(path string) ([]domain.StoryGroup, error) {
	if path == "" {
		return demoFeed(), nil
	}
	groups, err := feed.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// hydrateViewed applies persisted view history onto the loaded feed.
func hydrateViewed(groups []domain.StoryGroup, viewed *store.ViewedStore, userID string, logger *slog.Logger) {
	for gi := range groups {
		for si, story := range groups[gi].Stories {
			seen, err := viewed.IsViewed(userID, story.Base().ID)
			if err != nil {
				logger.Warn("viewed lookup failed", "story_id", story.Base().ID, "error", err)
				continue
			}
			if seen {
				groups[gi].Stories[si] = story.WithViewed(true)
			}
		}
	}
}

func demoFeed() []domain.StoryGroup {
	now := time.Now()
	return []domain.StoryGroup{
		{
			ID:     "g-ana",
			Author: domain.Author{ID: "u1", Name: "Ana Torres"},
			Stories: []domain.Story{
				domain.TextStory{
					StoryBase: domain.StoryBase{ID: "ana-1", GroupID: "g-ana", CreatedAt: now.Add(-2 * time.Hour)},
					Text:      "Sunrise hike this morning. Worth every step.",
				},
				domain.TextStory{
					StoryBase: domain.StoryBase{ID: "ana-2", GroupID: "g-ana", CreatedAt: now.Add(-1 * time.Hour)},
					Text:      "Summit!",
				},
			},
		},
		{
			ID:     "g-bo",
			Author: domain.Author{ID: "u2", Name: "Bo Lindqvist"},
			Stories: []domain.Story{
				domain.TextStory{
					StoryBase: domain.StoryBase{ID: "bo-1", GroupID: "g-bo", CreatedAt: now.Add(-3 * time.Hour)},
					Text:      "New pottery batch out of the kiln. The glaze finally behaved.",
				},
				domain.CustomStory{
					StoryBase: domain.StoryBase{ID: "bo-2", GroupID: "g-bo", CreatedAt: now.Add(-30 * time.Minute)},
					Payload:   "poll: matte or gloss?",
				},
			},
		},
		{
			ID:     "g-cy",
			Author: domain.Author{ID: "u3", Name: "Cyrus Patel"},
			Stories: []domain.Story{
				domain.TextStory{
					StoryBase: domain.StoryBase{ID: "cy-1", GroupID: "g-cy", CreatedAt: now.Add(-45 * time.Minute)},
					Text:      "Week three of the sourdough experiment. It lives.",
				},
			},
		},
	}
}
