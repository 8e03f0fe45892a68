// Package engine boots one agent from its configuration and runs its loops.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stellarlinkco/mindloop/internal/bus"
	"github.com/stellarlinkco/mindloop/internal/channel"
	"github.com/stellarlinkco/mindloop/internal/config"
	"github.com/stellarlinkco/mindloop/internal/cron"
	"github.com/stellarlinkco/mindloop/internal/filestore"
	"github.com/stellarlinkco/mindloop/internal/guardian"
	"github.com/stellarlinkco/mindloop/internal/llm"
	"github.com/stellarlinkco/mindloop/internal/logging"
	"github.com/stellarlinkco/mindloop/internal/loop"
	"github.com/stellarlinkco/mindloop/internal/memory"
	"github.com/stellarlinkco/mindloop/internal/mode"
	"github.com/stellarlinkco/mindloop/internal/relay"
	"github.com/stellarlinkco/mindloop/internal/tools"
	"github.com/stellarlinkco/mindloop/internal/transcript"
)

const (
	queueSize = 64

	jobMemory    = "memory"
	jobMonologue = "monologue"
)

// Options overrides collaborators, mainly for tests.
type Options struct {
	Generator  loop.Generator
	Embedder   memory.Embedder
	Console    channel.ConsoleIO
	SignalChan chan os.Signal
	Logger     *zap.Logger
}

type Engine struct {
	cfg    *config.Config
	logger *zap.Logger

	files    *filestore.Store
	registry *mode.Registry
	state    *mode.StateStore
	book     *transcript.Book
	memEng   *memory.Engine
	memory   *memory.Service
	gateway  *llm.Gateway
	tools    *tools.Dispatcher

	bus       *bus.MessageBus
	channels  *channel.ChannelManager
	scheduler *cron.Scheduler

	queues    *loop.Queues
	worker    *loop.Worker
	conductor *loop.Conductor
	input     *loop.Input
	watch     *loop.MemoryWatch
	monologue *loop.Monologue

	signalChan chan os.Signal
	closeOnce  sync.Once
}

// New wires every component. A memory store that cannot be opened or whose
// schema does not match is fatal.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		l, err := logging.New(cfg.Log.Level, cfg.Log.Development)
		if err != nil {
			return nil, err
		}
		logger = l
	}
	e := &Engine{cfg: cfg, logger: logger, signalChan: opts.SignalChan}

	files, err := filestore.New(cfg.Agent.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open data dir: %w", err)
	}
	e.files = files

	registry, err := mode.LoadRegistryFile(cfg.Agent.ModesFile, cfg.Agent.DefaultMode)
	if err != nil {
		return nil, fmt.Errorf("load modes: %w", err)
	}
	e.registry = registry
	e.state = mode.NewStateStore(files, registry)
	e.book = transcript.NewBook(files, registry)
	if _, err := e.state.Load(); err != nil {
		return nil, err
	}
	if err := loop.SaveIdentityIfMissing(files); err != nil {
		return nil, fmt.Errorf("init identity: %w", err)
	}

	memEng, err := memory.NewEngine(cfg.Memory.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	e.memEng = memEng

	gen, embedder := opts.Generator, opts.Embedder
	if gen == nil || embedder == nil {
		gw, err := llm.FromConfig(context.Background(), cfg, logger)
		if err != nil {
			_ = memEng.Close()
			return nil, fmt.Errorf("build llm gateway: %w", err)
		}
		e.gateway = gw
		if gen == nil {
			gen = gw
		}
		if embedder == nil {
			embedder = gw.Embedder(cfg.LLM.EmbedProvider)
		}
	}

	e.memory = memory.NewService(memEng, embedder, registry, serviceConfig(cfg), logger)

	project, err := guardian.New(cfg.Project.Root, cfg.Project.Incubator)
	if err != nil {
		_ = memEng.Close()
		return nil, err
	}
	rel := relay.New(gen, files, relay.DefaultPersonas(cfg.LLM.DefaultProvider, cfg.LLM.CreativeProvider, cfg.LLM.DefaultProvider), logger)

	e.tools = tools.NewDispatcher(registry, logger)
	e.tools.RegisterBuiltins(tools.Deps{
		State: e.state,
		Knowledge: tools.KnowledgeDeps{
			Memory:     e.memory,
			Relay:      rel,
			Files:      files,
			GlobalMode: registry.Global().ID,
			Generation: cfg.Agent.Generation,
		},
		System: tools.SystemDeps{
			Project: project,
			Files:   files,
			Logger:  logger,
		},
	})

	e.bus = bus.NewMessageBus(queueSize)
	e.channels, err = channel.NewChannelManager(cfg.Channels, opts.Console, e.bus, logger)
	if err != nil {
		_ = memEng.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}

	e.queues = loop.NewQueues(queueSize)
	e.worker = loop.NewWorker(loop.WorkerDeps{
		Queues:   e.queues,
		State:    e.state,
		Book:     e.book,
		Tools:    e.tools,
		Gen:      gen,
		Mind:     loop.NewMind(gen, cfg.LLM.DefaultProvider, cfg.LLM.CreativeProvider, logger),
		Persona:  loop.Persona{Generation: cfg.Agent.Generation, RoleName: cfg.Agent.RoleName},
		Provider: cfg.LLM.DefaultProvider,
		Logger:   logger,
	})
	e.conductor = loop.NewConductor(loop.ConductorDeps{
		Queues:     e.queues,
		State:      e.state,
		Book:       e.book,
		Outbound:   e.bus,
		WorkerDone: e.worker.Done(),
		Idle:       cfg.ProactiveInterval(),
		Logger:     logger,
	})
	e.input = loop.NewInput(e.bus.Inbound, e.queues, logger)
	e.watch = loop.NewMemoryWatch(e.state, e.book,
		memory.NewExtractor(gen, cfg.LLM.DefaultProvider, cfg.Agent.RoleName),
		e.memory,
		loop.MemoryWatchConfig{
			SnippetSize:    cfg.Memory.SnippetSize,
			MinStoreWeight: cfg.Memory.MinStoreWeight,
			ModelVersion:   cfg.Agent.Generation,
		}, logger)
	e.monologue = loop.NewMonologue(e.book, gen, cfg.LLM.DefaultProvider, cfg.Monologue.Keep, logger)

	e.scheduler = cron.New(logger)
	if err := e.scheduleMonitors(); err != nil {
		_ = memEng.Close()
		return nil, err
	}
	return e, nil
}

func serviceConfig(cfg *config.Config) memory.ServiceConfig {
	sc := memory.DefaultServiceConfig()
	sc.DedupThreshold = cfg.Memory.DedupThreshold
	sc.CandidateLimit = cfg.Memory.CandidateLimit
	sc.FinalLimit = cfg.Memory.FinalLimit
	w := cfg.Memory.Weights
	sc.Scorer = memory.Scorer{
		Weights: memory.Weights{
			Similarity:   w.Similarity,
			Value:        w.Value,
			Recency:      w.Recency,
			Frequency:    w.Frequency,
			EmotionBonus: w.EmotionBonus,
		},
		HalfLifeHours: cfg.Memory.HalfLifeHours,
		FrequencyCap:  cfg.Memory.FrequencyCap,
	}
	return sc
}

func (e *Engine) scheduleMonitors() error {
	err := e.scheduler.Every(jobMemory, e.cfg.MemoryPollInterval(), func(ctx context.Context) {
		if _, err := e.watch.Tick(ctx); err != nil {
			e.logger.Warn("memory loop tick failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	if !e.cfg.Monologue.Enabled {
		return nil
	}
	return e.scheduler.Every(jobMonologue, e.cfg.MonologueInterval(), func(ctx context.Context) {
		if _, err := e.monologue.Tick(ctx); err != nil {
			e.logger.Warn("monologue tick failed", zap.Error(err))
		}
	})
}

// Run starts channels, monitors and loops and blocks until an exit request,
// a signal or ctx cancellation. Resources are released before it returns.
func (e *Engine) Run(ctx context.Context) error {
	defer e.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.bus.DispatchOutbound(gctx)
		return nil
	})

	if err := e.channels.StartAll(gctx); err != nil {
		cancel()
		_ = g.Wait()
		return fmt.Errorf("start channels: %w", err)
	}
	e.logger.Info("channels started", zap.Strings("channels", e.channels.EnabledChannels()))

	e.scheduler.Start(gctx)
	defer e.scheduler.Stop()

	g.Go(func() error { return e.worker.Run(gctx) })
	g.Go(func() error { return e.input.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return e.conductor.Run(gctx)
	})
	g.Go(func() error {
		e.awaitSignal(gctx, cancel)
		return nil
	})

	st, _ := e.state.Load()
	e.logger.Info("agent running",
		zap.String("mode", st.CurrentMode),
		zap.String("generation", e.cfg.Agent.Generation),
		zap.Strings("jobs", e.scheduler.Jobs()))

	err := g.Wait()
	e.logger.Info("agent stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// awaitSignal turns SIGINT or SIGTERM into an exit request so the worker can
// finish its current task.
func (e *Engine) awaitSignal(ctx context.Context, cancel context.CancelFunc) {
	sigCh := e.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}
	select {
	case <-ctx.Done():
	case sig := <-sigCh:
		e.logger.Info("signal received", zap.String("signal", sig.String()))
		pushCtx, done := context.WithTimeout(ctx, time.Second)
		defer done()
		if err := e.queues.PushResult(pushCtx, loop.Result{Kind: loop.ResultExit}); err != nil {
			cancel()
		}
	}
}

// Close stops channels and releases the memory store. It is safe to call more than once.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		_ = e.channels.StopAll()
		if cerr := e.memEng.Close(); cerr != nil {
			e.logger.Warn("close memory store", zap.Error(cerr))
			err = cerr
		}
		_ = e.logger.Sync()
	})
	return err
}
