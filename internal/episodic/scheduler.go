package episodic

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/layeredmemory/engine/internal/logger"
)

// Task type names for the two periodic jobs (spec.md §4.E).
const (
	TaskEpisodize  = "episodic:episodize"
	TaskInstancize = "episodic:instancize"
)

// Scheduler registers the episodic pipeline's periodic tasks on an asynq
// scheduler built from the connection option the caller passes in, and holds
// a ServeMux with their handlers; no asynq server is built here. There is no
// package-level client or server, unlike the teacher's global asyncq.client
// (design note: "no global mutable state").
type Scheduler struct {
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	pipeline  *Pipeline
}

// NewScheduler builds a Scheduler bound to pipeline, using redisOpt for the
// asynq scheduler that enqueues the periodic tasks.
func NewScheduler(redisOpt asynq.RedisConnOpt, pipeline *Pipeline, episodizeCron, instancizeCron string) (*Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOpt, nil)
	mux := asynq.NewServeMux()

	s := &Scheduler{scheduler: scheduler, mux: mux, pipeline: pipeline}
	mux.HandleFunc(TaskEpisodize, s.handleEpisodize)
	mux.HandleFunc(TaskInstancize, s.handleInstancize)

	if _, err := scheduler.Register(episodizeCron, asynq.NewTask(TaskEpisodize, nil)); err != nil {
		return nil, err
	}
	if _, err := scheduler.Register(instancizeCron, asynq.NewTask(TaskInstancize, nil)); err != nil {
		return nil, err
	}
	return s, nil
}

// Mux returns the registered handlers for the caller's asynq.Server to run.
func (s *Scheduler) Mux() *asynq.ServeMux { return s.mux }

// Run starts the scheduler loop; it blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.scheduler.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.scheduler.Shutdown()
	return nil
}

func (s *Scheduler) handleEpisodize(ctx context.Context, _ *asynq.Task) error {
	stats, err := s.pipeline.RunEpisodize(ctx)
	if err != nil {
		return err
	}
	logger.Infof(ctx, "episodize run complete: %d episodes created across %d conversations", stats.EpisodesCreated, stats.ConversationsScanned)
	return nil
}

func (s *Scheduler) handleInstancize(ctx context.Context, _ *asynq.Task) error {
	stats, err := s.pipeline.RunInstancize(ctx)
	if err != nil {
		return err
	}
	logger.Infof(ctx, "instancize run complete: %d episodes archived, %d marked for compression", stats.EpisodesArchived, stats.InstancesCompressed)
	return nil
}
