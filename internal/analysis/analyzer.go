// Package analysis bundles the opening book, the external engine, and
// the cloud evaluation cache into one move-quality analysis facade.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/notnil/chess"

	"github.com/movegrade/movegrade/internal/book"
	"github.com/movegrade/movegrade/internal/cloudeval"
	"github.com/movegrade/movegrade/internal/config"
	"github.com/movegrade/movegrade/internal/engine"
	"github.com/movegrade/movegrade/internal/logging"
)

// evaluationQueue is what the analyzer needs from the engine layer.
type evaluationQueue interface {
	Evaluate(ctx context.Context, fen string, depth int, timeout time.Duration) (engine.Evaluation, error)
	Close()
}

// Analyzer owns every analysis resource: the opening book store, the
// engine request queue, and the cloud evaluation chain. All state lives
// here, never in package globals; callers create as many independent
// analyzers as they need and close each one.
type Analyzer struct {
	cfg config.Config
	log *logging.Logger

	bookStore *book.Store
	book      *book.QueryService

	proc  *engine.Process
	queue evaluationQueue

	cloud      cloudeval.Evaluator
	cloudStore *cloudeval.Store
}

// New builds an analyzer from the configuration. The engine process is
// not spawned yet; it starts lazily on the first evaluation, or eagerly
// via Initialize.
func New(cfg config.Config, log *logging.Logger) (*Analyzer, error) {
	bookPath := cfg.Book.Path
	if bookPath == "" {
		p, err := config.DefaultBookPath()
		if err != nil {
			return nil, fmt.Errorf("analysis: resolve book path: %w", err)
		}
		bookPath = p
	}
	bookStore, err := book.Open(bookPath)
	if err != nil {
		return nil, fmt.Errorf("analysis: open book: %w", err)
	}

	a := &Analyzer{
		cfg:       cfg,
		log:       log,
		bookStore: bookStore,
		book:      book.NewQueryService(bookStore, cfg.Book.CacheSize),
	}

	a.proc = engine.NewProcess(cfg.Engine.Path, cfg.Engine.Args, log)
	a.queue = engine.NewQueue(a.proc, log)

	a.cloud = cloudeval.NoopEvaluator{}
	if cfg.CloudEval.Enabled {
		cloud, store, err := buildCloudChain(cfg)
		if err != nil {
			bookStore.Close()
			a.queue.Close()
			return nil, err
		}
		a.cloud = cloud
		a.cloudStore = store
	}

	return a, nil
}

// buildCloudChain assembles Lichess behind the disk store behind the
// in-memory cache, so repeated lookups never touch the network.
func buildCloudChain(cfg config.Config) (cloudeval.Evaluator, *cloudeval.Store, error) {
	cacheDir := cfg.CloudEval.CacheDir
	if cacheDir == "" {
		d, err := config.CloudEvalCacheDir()
		if err != nil {
			return nil, nil, fmt.Errorf("analysis: resolve cloud cache dir: %w", err)
		}
		cacheDir = d
	}
	store, err := cloudeval.OpenStore(cacheDir)
	if err != nil {
		return nil, nil, fmt.Errorf("analysis: open cloud cache: %w", err)
	}

	var eval cloudeval.Evaluator = cloudeval.NewLichessEvaluator()
	eval = cloudeval.NewStoredEvaluator(eval, store)
	eval = cloudeval.NewCachedEvaluator(eval, cfg.CloudEval.CacheSize)
	return eval, store, nil
}

// Initialize spawns the engine process and completes its handshake.
// Optional: the first Evaluate does the same lazily.
func (a *Analyzer) Initialize(ctx context.Context) error {
	if a.proc == nil {
		return nil
	}
	return a.proc.Initialize(ctx)
}

// BookAvailable reports whether an opening book was found and loaded.
func (a *Analyzer) BookAvailable() bool {
	return a.bookStore.Initialized()
}

// BookMoves returns the book moves for a position, strongest first.
func (a *Analyzer) BookMoves(pos *chess.Position) []book.BookMove {
	return a.book.BookMoves(pos)
}

// IsInBook reports whether the position has at least one book move.
func (a *Analyzer) IsInBook(pos *chess.Position) bool {
	return a.book.InBook(pos)
}

// ClassifyGame partitions a game's plies into in-book and out-of-book
// segments.
func (a *Analyzer) ClassifyGame(game *chess.Game) []book.Segment {
	return a.book.ClassifyGame(game, uint16(a.cfg.Book.MinWeight))
}

// Evaluate analyses the position given as FEN to the given depth, or
// the configured default depth when depth is zero. A cloud evaluation
// of sufficient depth short-circuits the local engine.
func (a *Analyzer) Evaluate(ctx context.Context, fen string, depth int) (engine.Evaluation, error) {
	if depth <= 0 {
		depth = a.cfg.Engine.DefaultDepth
	}

	if cloud := a.cloud.Lookup(ctx, fen); cloud.Found && cloud.Depth >= depth {
		ev := engine.Evaluation{
			Depth:   cloud.Depth,
			ScoreCP: cloud.ScoreCP,
			Mate:    cloud.Mate,
			PV:      cloud.PV,
		}
		if len(cloud.PV) > 0 {
			ev.BestMove = cloud.PV[0]
		}
		return ev, nil
	}

	timeout := time.Duration(a.cfg.Engine.TimeoutMS) * time.Millisecond
	return a.queue.Evaluate(ctx, fen, depth, timeout)
}

// Close releases every resource: pending evaluations fail, the engine
// process terminates, the book and cloud stores close.
func (a *Analyzer) Close() {
	a.queue.Close()
	a.bookStore.Close()
	if a.cloudStore != nil {
		a.cloudStore.Close()
	}
}
