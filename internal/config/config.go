package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type Mode string

const (
	// ModeRemote talks to a deployed tutoring backend.
	ModeRemote Mode = "remote"
	// ModeLocal runs the tutor in process against an LLM provider.
	ModeLocal Mode = "local"
)

type Config struct {
	Mode Mode `env:"TUTOR_MODE" envDefault:"remote"`

	// Remote backend
	APIBaseURL string        `env:"API_BASE_URL" envDefault:"http://localhost:8000/api"`
	APIToken   string        `env:"API_TOKEN"`
	APITimeout time.Duration `env:"API_TIMEOUT" envDefault:"30s"`

	// LLM settings (local mode)
	LLMProvider      string `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL"`
	OpenAIModel      string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	YandexOAuthToken string `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string `env:"YANDEX_FOLDER_ID"`

	// Session identity
	StudentName string `env:"STUDENT_NAME"`
	ClassroomID string `env:"CLASSROOM_ID"`
	Topic       string `env:"TOPIC" envDefault:"linear equations"`

	// Polling
	ActivitiesInterval time.Duration `env:"ACTIVITIES_POLL_INTERVAL" envDefault:"10s"`
	ActivitiesTTL      time.Duration `env:"ACTIVITIES_TTL" envDefault:"30s"`
	AnalyticsInterval  time.Duration `env:"ANALYTICS_POLL_INTERVAL" envDefault:"5m"`
	AnalyticsTTL       time.Duration `env:"ANALYTICS_TTL" envDefault:"5m"`

	// Persistence
	AutosaveDebounce time.Duration `env:"AUTOSAVE_DEBOUNCE" envDefault:"2s"`
	SafetyInterval   time.Duration `env:"SAFETY_FLUSH_INTERVAL" envDefault:"30s"`

	// Phase resume thresholds. Heuristics over history length, not
	// business rules; a resumed session may land one phase behind its
	// true state until the next phase hint corrects it.
	PhaseTeachUpTo    int `env:"PHASE_TEACH_UP_TO" envDefault:"6"`
	PhasePracticeUpTo int `env:"PHASE_PRACTICE_UP_TO" envDefault:"10"`

	// Storage
	StorePath string `env:"STORE_PATH" envDefault:"data/mathmentor.db"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}
