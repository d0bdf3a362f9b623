// Package container wires every domain package behind a dig.Container,
// following the teacher's BuildContainer pattern: every store, cache,
// capability and pipeline is container.Provide'd rather than a package-level
// singleton (spec.md SPEC_FULL "Dependency wiring").
package container

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/dig"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/layeredmemory/engine/internal/cache"
	cachememory "github.com/layeredmemory/engine/internal/cache/memory"
	cacheredis "github.com/layeredmemory/engine/internal/cache/redis"
	"github.com/layeredmemory/engine/internal/cache/semantic"
	"github.com/layeredmemory/engine/internal/capability/classify"
	"github.com/layeredmemory/engine/internal/capability/embedding"
	"github.com/layeredmemory/engine/internal/capability/llm"
	"github.com/layeredmemory/engine/internal/config"
	"github.com/layeredmemory/engine/internal/episodic"
	"github.com/layeredmemory/engine/internal/filter"
	"github.com/layeredmemory/engine/internal/memory"
	"github.com/layeredmemory/engine/internal/store"
	storememory "github.com/layeredmemory/engine/internal/store/memory"
	storepostgres "github.com/layeredmemory/engine/internal/store/postgres"
	storeqdrant "github.com/layeredmemory/engine/internal/store/qdrant"
	"github.com/layeredmemory/engine/internal/tracing"
)

// embedderSemantic and embedderEpisodic are dig.Value wrapper types: the
// container needs two distinct embedding.Embedder instances (D_SEM vs
// D_EPI), and dig resolves providers by return type, so each is tagged with
// its own named type rather than sharing the bare embedding.Embedder
// interface (design note: two embedders back two differently-dimensioned
// retrievers, spec.md §6 "embedding.dim_semantic" / "embedding.dim_episodic").
type embedderSemantic struct{ embedding.Embedder }
type embedderEpisodic struct{ embedding.Embedder }

// BuildContainer registers every component the engine needs behind dig.
func BuildContainer(container *dig.Container) *dig.Container {
	must(container.Provide(NewResourceCleaner))
	must(container.Provide(config.LoadConfig))
	must(container.Provide(tracing.InitTracer))
	must(container.Invoke(registerTracerCleanup))
	must(container.Provide(initAntsPool))
	must(container.Invoke(registerPoolCleanup))
	must(container.Provide(initStore))
	must(container.Provide(initCacheBackend))
	must(container.Provide(initSemanticCache))
	must(container.Provide(initEmbedderSemantic))
	must(container.Provide(initEmbedderEpisodic))
	must(container.Provide(initLLM))
	must(container.Provide(initClassifier))
	must(container.Provide(filter.DefaultTypeRegistry))
	must(container.Provide(initEpisodicPipeline))
	must(container.Provide(initEpisodicScheduler))
	must(container.Provide(initMemoryFacade))
	return container
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func registerTracerCleanup(t *tracing.Tracer, cleaner *ResourceCleaner) {
	cleaner.RegisterWithName("Tracer", func() error {
		return t.Cleanup(context.Background())
	})
}

func registerPoolCleanup(pool *ants.Pool, cleaner *ResourceCleaner) {
	cleaner.RegisterWithName("AntsPool", func() error {
		pool.Release()
		return nil
	})
}

// initAntsPool builds the bounded goroutine pool shared by the episodic
// pipeline's per-conversation fan-out (spec.md SPEC_FULL "ants/v2 ... bounded
// goroutine pool behind the hybrid retriever's parallel ann+lex fan-out and
// the optimizer's pairwise similarity scratch work" — realized concretely in
// this repo as the episodic pipeline's conversation-level concurrency bound,
// since the retriever's two-way ann/lex fan-out is small enough for a plain
// errgroup and the optimizer's dedup/contradiction passes are sequential by
// construction, see DESIGN.md).
func initAntsPool() (*ants.Pool, error) {
	size := 10
	if v := os.Getenv("CONCURRENCY_POOL_SIZE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			size = parsed
		}
	}
	return ants.NewPool(size, ants.WithPreAlloc(true))
}

// initStore selects the Vector Store backend named by cfg.Store.Driver
// ("postgres" | "qdrant" | "memory"), defaulting to the in-memory store so
// the engine is buildable with zero external services (design note,
// spec.md "buildable against a purely in-memory stub for tests").
func initStore(cfg *config.Config) (store.Store, error) {
	driver := cfg.Store.Driver
	switch driver {
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			os.Getenv("DB_HOST"), os.Getenv("DB_PORT"), os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"), os.Getenv("DB_NAME"), "disable",
		)
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		dims := map[store.Table]int{
			store.TablePersona:   cfg.Embedding.DimSemantic,
			store.TableKnowledge: cfg.Embedding.DimSemantic,
			store.TableEpisode:   cfg.Embedding.DimEpisodic,
			store.TableInstance:  cfg.Embedding.DimEpisodic,
		}
		return storepostgres.New(db, dims), nil
	case "qdrant":
		addr := os.Getenv("QDRANT_ADDR")
		if addr == "" {
			return nil, fmt.Errorf("store driver qdrant requires QDRANT_ADDR")
		}
		return storeqdrant.Dial(addr)
	default:
		return storememory.New(), nil
	}
}

// initCacheBackend selects the Cache backend; defaults to the in-memory
// implementation, same rationale as initStore.
func initCacheBackend() (cache.Cache, error) {
	switch os.Getenv("CACHE_DRIVER") {
	case "redis":
		db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
		return cacheredis.New(os.Getenv("REDIS_ADDR"), os.Getenv("REDIS_PASSWORD"), db)
	default:
		return cachememory.New(), nil
	}
}

func initSemanticCache(backend cache.Cache, cfg *config.Config) *semantic.Cache {
	return semantic.New(backend, cfg.Cache)
}

func initEmbedderSemantic(cfg *config.Config) embedderSemantic {
	e := embedding.New(embedding.Config{
		Source: cfg.Embedding.Source, BaseURL: cfg.Embedding.BaseURL,
		ModelName: cfg.Embedding.ModelName, APIKey: cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.DimSemantic,
	})
	return embedderSemantic{e}
}

func initEmbedderEpisodic(cfg *config.Config) embedderEpisodic {
	e := embedding.New(embedding.Config{
		Source: cfg.Embedding.Source, BaseURL: cfg.Embedding.BaseURL,
		ModelName: cfg.Embedding.ModelName, APIKey: cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.DimEpisodic,
	})
	return embedderEpisodic{e}
}

// initLLM builds the optional LLM capability the optimizer's
// contradiction/compression stages use when present. No API key configured
// means no LLM: the optimizer degrades to its heuristic path rather than
// failing (spec.md §6 "Absence must not break any core operation").
func initLLM() llm.LLM {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil
	}
	return llm.NewOpenAI(apiKey, os.Getenv("OPENAI_BASE_URL"), os.Getenv("OPENAI_MODEL"))
}

func initClassifier() classify.Classifier {
	return classify.NewRuleBased()
}

// initEpisodicPipeline builds the episodic pipeline bound to the episodic
// embedder, with its per-conversation fan-out bounded by the shared pool.
func initEpisodicPipeline(st store.Store, epi embedderEpisodic, cfg *config.Config, pool *ants.Pool) *episodic.Pipeline {
	return episodic.New(st, epi.Embedder, cfg.Episodic).WithPool(pool)
}

// initEpisodicScheduler registers the episodize/instancize periodic tasks on
// an asynq scheduler when REDIS_ADDR is configured. Without it, callers run
// the pipeline's RunEpisodize/RunInstancize directly (e.g. from a cron-style
// caller of their own), so a nil scheduler is not an error.
func initEpisodicScheduler(pipeline *episodic.Pipeline, cfg *config.Config) (*episodic.Scheduler, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil, nil
	}
	redisOpt := asynq.RedisClientOpt{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")}
	return episodic.NewScheduler(redisOpt, pipeline, cfg.Episodic.EpisodizeCron, cfg.Episodic.InstancizeCron)
}

// initMemoryFacade builds the Memory Facade from its dependencies.
func initMemoryFacade(
	st store.Store,
	sc *semantic.Cache,
	sem embedderSemantic,
	epi embedderEpisodic,
	classifier classify.Classifier,
	model llm.LLM,
	registry *filter.TypeRegistry,
	cfg *config.Config,
) *memory.Facade {
	return memory.New(st, sc, sem.Embedder, epi.Embedder, classifier, model, registry, cfg)
}
