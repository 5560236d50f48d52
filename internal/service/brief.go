package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"morning_brief/internal/config"
	"morning_brief/internal/domain"
	"morning_brief/internal/source"
	"morning_brief/internal/urgency"
)

// Sources are the adapters a BriefService can draw from. Which of them a run
// uses is decided by BriefOptions.Mode.
type Sources struct {
	Registry *source.Registry
	Search   source.Adapter
	Fixtures []source.Adapter
}

type BriefOptions struct {
	Mode                   config.Mode
	FallbackToFixtures     bool
	ProviderTimeout        time.Duration
	MaxConcurrentProviders int
	DefaultListLimit       int
}

func BriefOptionsFromConfig(cfg config.BriefConfig) BriefOptions {
	return BriefOptions{
		Mode:                   cfg.Mode,
		FallbackToFixtures:     cfg.FallbackToFixtures,
		ProviderTimeout:        cfg.ProviderTimeout,
		MaxConcurrentProviders: cfg.MaxConcurrentProviders,
		DefaultListLimit:       cfg.DefaultListLimit,
	}
}

type BriefService struct {
	items        BriefItemStore
	integrations IntegrationStore
	tokens       TokenProvider
	sources      Sources
	generations  GenerationStateStore
	txManager    TransactionManager
	publisher    Publisher
	logger       *slog.Logger
	opts         BriefOptions
	now          func() time.Time
}

func NewBriefService(
	items BriefItemStore,
	integrations IntegrationStore,
	tokens TokenProvider,
	sources Sources,
	generations GenerationStateStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	opts BriefOptions,
) *BriefService {
	if opts.Mode == "" {
		opts.Mode = config.ModeIntegrations
	}
	if opts.MaxConcurrentProviders <= 0 {
		opts.MaxConcurrentProviders = 5
	}
	if opts.DefaultListLimit <= 0 {
		opts.DefaultListLimit = 50
	}
	if sources.Registry == nil {
		sources.Registry = source.NewRegistry()
	}
	return &BriefService{
		items:        items,
		integrations: integrations,
		tokens:       tokens,
		sources:      sources,
		generations:  generations,
		txManager:    txManager,
		publisher:    publisher,
		logger:       logger.With("mode", opts.Mode),
		opts:         opts,
		now:          time.Now,
	}
}

type fetchJob struct {
	provider   domain.Provider
	adapter    source.Adapter
	config     map[string]string
	needsToken bool
}

// Generate pulls signals for userID from every configured provider, stores
// the ones not seen before and returns them together with already stored
// matches. It never fails: provider and item errors are logged and skipped,
// and on cancellation whatever was collected so far is returned.
func (s *BriefService) Generate(ctx context.Context, userID string) (brief *domain.Brief) {
	start := time.Now()
	logger := s.logger.With("user_id", userID)
	brief = &domain.Brief{UserID: userID, Items: []domain.BriefItem{}}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("brief generation panicked", "panic", r)
			brief = &domain.Brief{UserID: userID, Items: []domain.BriefItem{}}
		}
	}()

	jobs, err := s.planJobs(ctx, userID, logger)
	if err != nil {
		logger.Error("failed to load providers", "error", err)
		return brief
	}
	if len(jobs) == 0 {
		logger.Info("no active integrations")
		return brief
	}

	logger.Info("starting brief generation", "providers", len(jobs))

	c := newCollector(len(jobs))
	s.run(ctx, userID, jobs, c)

	if s.opts.Mode == config.ModeUnifiedSearch && s.opts.FallbackToFixtures &&
		len(s.sources.Fixtures) > 0 && c.failed(domain.ProviderSearch) && ctx.Err() == nil {
		logger.Warn("search backend unavailable, falling back to fixtures")
		fallback := s.fixtureJobs()
		fc := newCollector(len(fallback))
		s.run(ctx, userID, fallback, fc)
		c.merge(fc)
	}

	items, stats, errs := c.snapshot()
	stats.Partial = ctx.Err() != nil
	stats.Duration = time.Since(start)

	brief.Items = items
	brief.Stats = stats

	s.recordGeneration(ctx, userID, stats, logger)

	attrs := []any{
		"providers", stats.Providers,
		"provider_errors", stats.ProviderErrors,
		"fetched", stats.Fetched,
		"created", stats.Created,
		"existing", stats.Existing,
		"errors", stats.Errors,
		"published", stats.Published,
		"partial", stats.Partial,
		"duration", stats.Duration,
	}
	if errs != nil {
		attrs = append(attrs, "failures", errs.Error())
	}
	logger.Info("brief generated", attrs...)

	return brief
}

func (s *BriefService) planJobs(ctx context.Context, userID string, logger *slog.Logger) ([]fetchJob, error) {
	switch s.opts.Mode {
	case config.ModeFixtures:
		return s.fixtureJobs(), nil

	case config.ModeUnifiedSearch:
		if s.sources.Search == nil {
			return nil, errors.New("unified search mode without a search adapter")
		}
		return []fetchJob{{provider: domain.ProviderSearch, adapter: s.sources.Search}}, nil
	}

	active, err := s.integrations.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}

	jobs := make([]fetchJob, 0, len(active))
	for _, in := range active {
		adapter, ok := s.sources.Registry.Lookup(in.Provider)
		if !ok {
			logger.Warn("no adapter for provider", "provider", in.Provider)
			continue
		}
		jobs = append(jobs, fetchJob{
			provider:   in.Provider,
			adapter:    adapter,
			config:     in.Config,
			needsToken: true,
		})
	}
	return jobs, nil
}

func (s *BriefService) fixtureJobs() []fetchJob {
	jobs := make([]fetchJob, 0, len(s.sources.Fixtures))
	for _, a := range s.sources.Fixtures {
		jobs = append(jobs, fetchJob{provider: a.Provider(), adapter: a})
	}
	return jobs
}

// run executes jobs with bounded concurrency. It returns when every job has
// finished or ctx is done, whichever comes first.
func (s *BriefService) run(ctx context.Context, userID string, jobs []fetchJob, c *collector) {
	done := make(chan struct{})

	go func() {
		defer close(done)

		var g errgroup.Group
		g.SetLimit(s.opts.MaxConcurrentProviders)
		for i, job := range jobs {
			i, job := i, job
			g.Go(func() error {
				s.runJob(ctx, userID, i, job, c)
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("brief generation interrupted", "user_id", userID, "error", ctx.Err())
	}
}

func (s *BriefService) runJob(ctx context.Context, userID string, slot int, job fetchJob, c *collector) {
	logger := s.logger.With("user_id", userID, "provider", job.provider)
	c.started()

	defer func() {
		if r := recover(); r != nil {
			err := &domain.ProviderFetchError{Provider: job.provider, Err: fmt.Errorf("panic: %v", r)}
			logger.Error("provider panicked", "error", err)
			c.providerFailed(job.provider, err)
		}
	}()

	signals, err := s.fetch(ctx, userID, job)
	if err != nil {
		err = &domain.ProviderFetchError{Provider: job.provider, Err: err}
		logger.Warn("skipping provider", "error", err)
		c.providerFailed(job.provider, err)
		return
	}

	c.fetched(len(signals))
	now := s.now()

	for _, sig := range signals {
		if ctx.Err() != nil {
			return
		}

		item, created, err := s.persist(ctx, userID, sig, now)
		if err != nil {
			err = &domain.PersistenceError{Source: sig.Source, ExternalID: sig.ExternalID, Err: err}
			logger.Warn("skipping item",
				"source", sig.Source,
				"external_id", sig.ExternalID,
				"error", err,
			)
			c.itemFailed(err)
			continue
		}

		published := false
		if created && s.publisher != nil {
			if err := s.publisher.Publish(ctx, item); err != nil {
				logger.Warn("failed to publish item", "item_id", item.ID, "external_id", sig.ExternalID, "error", err)
				c.itemFailed(fmt.Errorf("publish %s: %w", item.ID, err))
			} else {
				published = true
			}
		}

		c.add(slot, *item, created, published)
	}
}

func (s *BriefService) fetch(ctx context.Context, userID string, job fetchJob) ([]domain.RawSignal, error) {
	fctx := ctx
	if s.opts.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, s.opts.ProviderTimeout)
		defer cancel()
	}

	creds := domain.Credentials{UserID: userID, Config: job.config}
	if job.needsToken {
		token, err := s.tokens.GetValidToken(fctx, userID, job.provider)
		if err != nil {
			return nil, fmt.Errorf("get token: %w", err)
		}
		creds.AccessToken = token
	}

	return job.adapter.FetchSignals(fctx, creds)
}

// persist returns the stored item for sig, creating it unless an item with
// the same natural key already exists.
func (s *BriefService) persist(ctx context.Context, userID string, sig domain.RawSignal, now time.Time) (*domain.BriefItem, bool, error) {
	item := buildItem(userID, sig, now)

	if item.HasExternalID() {
		existing, err := s.items.FindByExternalID(ctx, userID, item.Source, *item.ExternalID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, domain.ErrItemNotFound) {
			return nil, false, fmt.Errorf("find existing: %w", err)
		}
	}

	err := s.items.Create(ctx, item)
	if errors.Is(err, domain.ErrDuplicateItem) && item.HasExternalID() {
		// Lost a race with a concurrent run for the same user.
		existing, ferr := s.items.FindByExternalID(ctx, userID, item.Source, *item.ExternalID)
		if ferr != nil {
			return nil, false, fmt.Errorf("refetch duplicate: %w", ferr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create: %w", err)
	}

	return item, true, nil
}

func buildItem(userID string, sig domain.RawSignal, now time.Time) *domain.BriefItem {
	u := sig.Urgency
	if !u.Valid() {
		u = urgency.Classify(sig.Factors, now)
	}

	itemType := sig.Type
	if itemType == "" {
		itemType = domain.ItemTypeItem
	}
	src := sig.Source
	if src == "" {
		src = domain.SourceGeneric
	}

	processed := now
	item := &domain.BriefItem{
		UserID:      userID,
		Type:        itemType,
		Source:      src,
		Urgency:     u,
		Text:        sig.Text,
		Metadata:    sig.Metadata,
		ProcessedAt: &processed,
	}
	if sig.ExternalID != "" {
		id := sig.ExternalID
		item.ExternalID = &id
	}
	if sig.SourceURL != "" {
		link := sig.SourceURL
		item.ExternalURL = &link
	}
	return item
}

func (s *BriefService) recordGeneration(ctx context.Context, userID string, stats domain.GenerateStats, logger *slog.Logger) {
	if s.generations == nil {
		return
	}

	// Bookkeeping still happens when the run itself was cancelled.
	ctx = context.WithoutCancel(ctx)

	update := func(ctx context.Context) error {
		state, err := s.generations.Record(ctx, userID, s.now(), stats.Created+stats.Existing, stats.Created)
		if err != nil {
			return err
		}
		logger.Debug("generation recorded", "total_created", state.TotalCreated)
		return nil
	}

	var err error
	if s.txManager != nil {
		err = s.txManager.WithTransaction(ctx, update)
	} else {
		err = update(ctx)
	}
	if err != nil {
		logger.Error("failed to update generation state", "error", err)
	}
}

// List returns the user's items, most urgent first. A zero limit uses the
// configured default cap; a negative limit returns every item.
func (s *BriefService) List(ctx context.Context, userID string, limit int) ([]domain.BriefItem, error) {
	switch {
	case limit == 0:
		limit = s.opts.DefaultListLimit
	case limit < 0:
		limit = 0
	}
	items, err := s.items.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list brief items: %w", err)
	}
	return items, nil
}

func (s *BriefService) Delete(ctx context.Context, userID, itemID string) error {
	if err := s.items.Delete(ctx, userID, itemID); err != nil {
		return fmt.Errorf("delete brief item: %w", err)
	}
	s.logger.Info("brief item deleted", "user_id", userID, "item_id", itemID)
	return nil
}

// collector gathers per-job output. Jobs keep writing after a cancelled run
// has taken its snapshot, so every access is locked.
type collector struct {
	mu     sync.Mutex
	slots  [][]domain.BriefItem
	stats  domain.GenerateStats
	errs   error
	broken map[domain.Provider]bool
}

func newCollector(n int) *collector {
	return &collector{
		slots:  make([][]domain.BriefItem, n),
		broken: make(map[domain.Provider]bool),
	}
}

func (c *collector) started() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Providers++
}

func (c *collector) fetched(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Fetched += n
}

func (c *collector) providerFailed(p domain.Provider, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.ProviderErrors++
	c.broken[p] = true
	c.errs = multierr.Append(c.errs, err)
}

func (c *collector) itemFailed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Errors++
	c.errs = multierr.Append(c.errs, err)
}

func (c *collector) add(slot int, item domain.BriefItem, created, published bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[slot] = append(c.slots[slot], item)
	if created {
		c.stats.Created++
	} else {
		c.stats.Existing++
	}
	if published {
		c.stats.Published++
	}
}

func (c *collector) failed(p domain.Provider) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken[p]
}

func (c *collector) merge(o *collector) {
	items, stats, errs := o.snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots = append(c.slots, items)
	c.stats.Providers += stats.Providers
	c.stats.ProviderErrors += stats.ProviderErrors
	c.stats.Fetched += stats.Fetched
	c.stats.Created += stats.Created
	c.stats.Existing += stats.Existing
	c.stats.Errors += stats.Errors
	c.stats.Published += stats.Published
	c.errs = multierr.Append(c.errs, errs)
}

// snapshot flattens the slots in job order, dropping repeats of the same
// stored item.
func (c *collector) snapshot() ([]domain.BriefItem, domain.GenerateStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := []domain.BriefItem{}
	seen := make(map[string]bool)
	for _, slot := range c.slots {
		for _, item := range slot {
			if item.ID != "" {
				if seen[item.ID] {
					continue
				}
				seen[item.ID] = true
			}
			items = append(items, item)
		}
	}
	return items, c.stats, c.errs
}
