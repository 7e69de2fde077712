package queue

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/store"
)

// Handler runs one claimed job. Returning nil marks the job completed;
// returning an error marks it failed with the error message recorded.
// Handlers that complete their own job (fan-in barriers do) are safe: the
// pool's completion update is idempotent.
type Handler func(ctx context.Context, job *model.JobRecord) error

// PoolConfig tunes the worker pool.
type PoolConfig struct {
	// Concurrency is the number of workers per registered queue.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	// PollInterval is how long an idle worker sleeps between claims.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	// ClaimRate caps claims per second across each queue's workers.
	ClaimRate float64 `yaml:"claim_rate" mapstructure:"claim_rate"`
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Concurrency:  4,
		PollInterval: 500 * time.Millisecond,
		ClaimRate:    50,
	}
}

// Pool claims jobs from the ledger and dispatches them to handlers.
type Pool struct {
	store    store.Store
	cfg      PoolConfig
	handlers map[string]Handler
	limiters map[string]*rate.Limiter
	onFailed func(ctx context.Context, job *model.JobRecord)
}

func NewPool(s store.Store, cfg PoolConfig) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultPoolConfig().Concurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPoolConfig().PollInterval
	}
	if cfg.ClaimRate <= 0 {
		cfg.ClaimRate = DefaultPoolConfig().ClaimRate
	}
	return &Pool{
		store:    s,
		cfg:      cfg,
		handlers: make(map[string]Handler),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Register attaches a handler to a queue. Must be called before Run.
func (p *Pool) Register(queue string, h Handler) {
	p.handlers[queue] = h
	p.limiters[queue] = rate.NewLimiter(rate.Limit(p.cfg.ClaimRate), 1)
}

// OnJobFailed sets a callback invoked after a job is recorded as failed. A
// failed job still counts toward its root's drain, so orchestration layers
// hook this to run the same fan-in check a completion would. Must be called
// before Run.
func (p *Pool) OnJobFailed(fn func(ctx context.Context, job *model.JobRecord)) {
	p.onFailed = fn
}

// Run starts the workers and blocks until the context is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	if len(p.handlers) == 0 {
		return eris.New("queue: no handlers registered")
	}

	g, ctx := errgroup.WithContext(ctx)
	for queue := range p.handlers {
		for i := 0; i < p.cfg.Concurrency; i++ {
			g.Go(func() error {
				p.work(ctx, queue)
				return nil
			})
		}
	}
	zap.L().Info("worker pool started",
		zap.Int("queues", len(p.handlers)),
		zap.Int("concurrency", p.cfg.Concurrency))
	return g.Wait()
}

func (p *Pool) work(ctx context.Context, queue string) {
	handler := p.handlers[queue]
	limiter := p.limiters[queue]

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		job, err := p.store.ClaimJob(ctx, queue)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			zap.L().Error("claim failed", zap.String("queue", queue), zap.Error(err))
			if !sleep(ctx, p.cfg.PollInterval) {
				return
			}
			continue
		}
		if job == nil {
			if !sleep(ctx, p.cfg.PollInterval) {
				return
			}
			continue
		}

		p.runJob(ctx, handler, job)
	}
}

func (p *Pool) runJob(ctx context.Context, handler Handler, job *model.JobRecord) {
	log := zap.L().With(
		zap.String("job_id", job.ID),
		zap.String("queue", job.Queue),
		zap.String("root_id", job.RootID))
	start := time.Now()

	if err := handler(ctx, job); err != nil {
		log.Error("job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		if failErr := p.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			log.Error("recording failure failed", zap.Error(failErr))
			return
		}
		if p.onFailed != nil {
			p.onFailed(ctx, job)
		}
		return
	}

	if err := p.store.CompleteJob(ctx, job.ID, nil); err != nil {
		log.Error("recording completion failed", zap.Error(err))
		return
	}
	log.Debug("job completed", zap.Duration("elapsed", time.Since(start)))
}

// sleep waits for d or until the context ends, reporting whether to go on.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
