package usecase

import (
	"time"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/flowlens/pkg/domain/interfaces"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/service/atlassian"
	"github.com/secmon-lab/flowlens/pkg/service/classifier"
	"github.com/secmon-lab/flowlens/pkg/service/notify"
	"github.com/secmon-lab/flowlens/pkg/service/vault"
)

const (
	defaultTokenMargin = 5 * time.Minute
	defaultSyncWindow  = 90 * 24 * time.Hour
)

// clientFactory builds an API client for one connection; tests swap it
// to point at a local server
type clientFactory func(tokens atlassian.TokenSource, cloudID string) *atlassian.Client

type UseCases struct {
	repo       interfaces.Repository
	vault      *vault.Vault
	oauth      *atlassian.OAuth
	classifier *classifier.Classifier

	costRates   model.CostRates
	analytics   model.AnalyticsSettings
	tokenMargin time.Duration
	syncWindow  time.Duration

	llm          gollem.LLMClient
	notifier     notify.Service
	storage      *storage.Client
	reportBucket string

	newClient clientFactory
}

type Option func(*UseCases)

// WithClassifier replaces the default cohort classifier
func WithClassifier(c *classifier.Classifier) Option {
	return func(uc *UseCases) {
		uc.classifier = c
	}
}

// WithCostRates sets the financial assumptions for cost and ROI
// analytics
func WithCostRates(rates model.CostRates) Option {
	return func(uc *UseCases) {
		uc.costRates = rates
	}
}

// WithAnalyticsSettings sets the analytics thresholds
func WithAnalyticsSettings(settings model.AnalyticsSettings) Option {
	return func(uc *UseCases) {
		uc.analytics = settings
	}
}

// WithTokenMargin sets the refresh safety margin for access tokens
func WithTokenMargin(margin time.Duration) Option {
	return func(uc *UseCases) {
		uc.tokenMargin = margin
	}
}

// WithSyncWindow sets the rolling window for issue sync
func WithSyncWindow(window time.Duration) Option {
	return func(uc *UseCases) {
		uc.syncWindow = window
	}
}

// WithLLM enables the generated insight narrative. Nil keeps insights
// rule-based only.
func WithLLM(llm gollem.LLMClient) Option {
	return func(uc *UseCases) {
		uc.llm = llm
	}
}

// WithNotifier enables sync failure notifications
func WithNotifier(n notify.Service) Option {
	return func(uc *UseCases) {
		uc.notifier = n
	}
}

// WithReportStorage enables executive report export to a GCS bucket
func WithReportStorage(client *storage.Client, bucket string) Option {
	return func(uc *UseCases) {
		uc.storage = client
		uc.reportBucket = bucket
	}
}

// WithClientFactory replaces API client construction, used by tests
func WithClientFactory(f func(tokens atlassian.TokenSource, cloudID string) *atlassian.Client) Option {
	return func(uc *UseCases) {
		uc.newClient = f
	}
}

func New(repo interfaces.Repository, tokenVault *vault.Vault, oauth *atlassian.OAuth, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:        repo,
		vault:       tokenVault,
		oauth:       oauth,
		classifier:  classifier.Default(),
		costRates:   model.DefaultCostRates(),
		analytics:   model.DefaultAnalyticsSettings(),
		tokenMargin: defaultTokenMargin,
		syncWindow:  defaultSyncWindow,
		newClient: func(tokens atlassian.TokenSource, cloudID string) *atlassian.Client {
			return atlassian.NewClient(tokens, cloudID)
		},
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}
