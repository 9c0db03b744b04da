package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"mathmentor/internal/activity"
	"mathmentor/internal/api"
	"mathmentor/internal/cache"
	"mathmentor/internal/config"
	"mathmentor/internal/kvstore"
	"mathmentor/internal/llm"
	"mathmentor/internal/poller"
	"mathmentor/internal/progress"
	"mathmentor/internal/session"
	"mathmentor/internal/tutor"
	"mathmentor/internal/visibility"
)

const selectedClassroomKey = "selected-classroom"

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	kv := openStore(cfg.StorePath)
	defer func() { _ = kv.Close() }()

	client, err := newClient(cfg)
	if err != nil {
		log.Fatalf("failed to create backend client: %v", err)
	}

	classroomID := resolveClassroom(cfg, kv)

	vis := visibility.NewTracker()
	events := activity.NewEvents()

	// Activities list: poll + persistent cache so a restart starts warm.
	activityCache := cache.New(
		cache.WithStore[[]api.Activity](cache.NewKVBackedStore[[]api.Activity](kv, "cache:")),
	)
	activities := poller.New(activityCache, vis)
	defer activities.Close()

	analyticsCache := cache.New[api.AnalyticsSnapshot]()
	analytics := poller.New(analyticsCache, vis)
	defer analytics.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	activitiesKey := "classroom-activities:" + classroomID
	refreshActivities := func(ctx context.Context) ([]api.Activity, error) {
		return client.ListActivities(ctx, classroomID, false)
	}
	unsubActivities := activities.Subscribe(activitiesKey, cfg.ActivitiesInterval, cfg.ActivitiesTTL, refreshActivities)
	defer unsubActivities()

	analyticsKey := "classroom-analytics:" + classroomID
	unsubAnalytics := analytics.Subscribe(analyticsKey, cfg.AnalyticsInterval, cfg.AnalyticsTTL, func(ctx context.Context) (api.AnalyticsSnapshot, error) {
		return client.ClassroomAnalytics(ctx, classroomID, "week")
	})
	defer unsubAnalytics()

	// Completion invalidates the list ahead of its TTL.
	unsubStale := events.ActivityListStale.Subscribe(func(string) {
		activityCache.Delete(activitiesKey)
		if _, err := activities.Load(context.Background(), activitiesKey, cfg.ActivitiesTTL, refreshActivities); err != nil {
			log.Printf("activity list refresh failed: %v", err)
		}
	})
	defer unsubStale()

	// First load reconciles assignment state on the backend.
	list, err := activities.Load(ctx, activitiesKey, cfg.ActivitiesTTL, func(ctx context.Context) ([]api.Activity, error) {
		return client.ListActivities(ctx, classroomID, true)
	})
	if err != nil {
		if api.IsAuthError(err) {
			log.Fatalf("❌ %v", err)
		}
		log.Fatalf("failed to load activities: %v", err)
	}

	act, ok := pickActivity(list)
	if !ok {
		log.Println("No open activities in this classroom.")
		return
	}
	log.Printf("📚 Opening activity %q", act.Title)

	ctrl, err := activity.New(client, act, classroomID, events, vis, activity.Options{
		Thresholds:       session.Thresholds{TeachUpTo: cfg.PhaseTeachUpTo, PracticeUpTo: cfg.PhasePracticeUpTo},
		AutosaveDebounce: cfg.AutosaveDebounce,
		SafetyInterval:   cfg.SafetyInterval,
	})
	if err != nil {
		log.Fatalf("failed to init session: %v", err)
	}
	defer ctrl.Close()

	intro, err := ctrl.Open(ctx, nil)
	if err != nil {
		if api.IsAuthError(err) {
			log.Fatalf("❌ %v", err)
		}
		log.Fatalf("failed to open session: %v", err)
	}
	fmt.Printf("\nTutor: %s\n", intro)

	runLoop(ctx, ctrl, analyticsCache, analyticsKey)
}

func runLoop(ctx context.Context, ctrl *activity.Controller, analyticsCache *cache.Cache[api.AnalyticsSnapshot], analyticsKey string) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Type your message, or /complete, /status, /quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Println("\nSaving and exiting...")
			return
		case line, ok = <-lines:
			if !ok {
				return
			}
		}

		input := strings.TrimSpace(line)
		switch {
		case input == "":
			continue
		case input == "/quit":
			return
		case input == "/status":
			sig := ctrl.Signal()
			fmt.Printf("Phase: %s, your messages: %d, math work: %v\n",
				ctrl.Phase(), sig.UserMessageCount, sig.HasMathematicalWork)
			if snap, found := analyticsCache.Get(analyticsKey); found {
				fmt.Printf("Classroom: %d active, %d completed, avg %.0f%%\n",
					snap.ActiveStudents, snap.CompletedActivities, snap.AverageScore)
			}
		case input == "/complete":
			result, err := ctrl.Complete(ctx)
			if err != nil {
				if errors.Is(err, session.ErrNotEligible) {
					fmt.Println("Keep going a little longer before completing - try working through a problem.")
					continue
				}
				if api.IsAuthError(err) {
					fmt.Printf("❌ %v\n", err)
					return
				}
				fmt.Printf("completion failed: %v\n", err)
				continue
			}
			fmt.Println(progress.Summarize(ctrl.SessionID(), ctrl.Phase(), ctrl.History(), ctrl.Signal(), &result).Render())
			return
		default:
			reply, err := ctrl.Send(ctx, input)
			if err != nil {
				if errors.Is(err, session.ErrSessionComplete) {
					fmt.Println("This session is already complete.")
					return
				}
				if api.IsAuthError(err) {
					fmt.Printf("❌ %v\n", err)
					return
				}
				fmt.Printf("The tutor is unreachable right now, try again: %v\n", err)
				continue
			}
			fmt.Printf("\nTutor: %s\n", reply)
		}
	}
}

func openStore(path string) kvstore.Store {
	if path == "" {
		return kvstore.NewMemory()
	}
	kv, err := kvstore.NewSQLite(path)
	if err != nil {
		log.Printf("failed to open store at %s, using memory: %v", path, err)
		return kvstore.NewMemory()
	}
	return kv
}

func newClient(cfg *config.Config) (api.Client, error) {
	if cfg.Mode == config.ModeLocal {
		factory := &llm.Factory{
			OpenAIAPIKey:     cfg.OpenAIAPIKey,
			OpenAIBaseURL:    cfg.OpenAIBaseURL,
			YandexOAuthToken: cfg.YandexOAuthToken,
			YandexFolderID:   cfg.YandexFolderID,
		}
		llmClient, err := factory.CreateClient(cfg.LLMProvider, cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		log.Printf("🧮 Running offline tutor on %s", cfg.LLMProvider)
		return tutor.NewLocal(llmClient, cfg.Topic, cfg.StudentName), nil
	}
	return api.NewHTTP(cfg.APIBaseURL, cfg.APIToken, cfg.APITimeout), nil
}

// resolveClassroom prefers the configured classroom and remembers it;
// otherwise the previously selected one survives restarts via the store.
func resolveClassroom(cfg *config.Config, kv kvstore.Store) string {
	if cfg.ClassroomID != "" {
		if err := kv.Set(selectedClassroomKey, cfg.ClassroomID); err != nil {
			log.Printf("failed to remember classroom: %v", err)
		}
		return cfg.ClassroomID
	}
	if stored, ok, err := kv.Get(selectedClassroomKey); err == nil && ok {
		return stored
	}
	return "default"
}

func pickActivity(list []api.Activity) (api.Activity, bool) {
	for _, a := range list {
		if a.Status != "completed" {
			return a, true
		}
	}
	return api.Activity{}, false
}
