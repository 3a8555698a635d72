// Command movegrade analyses a chess game: it marks the opening theory,
// then grades every played move against an external UCI engine, using
// the Lichess cloud evaluation database as a shortcut when enabled.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/notnil/chess"

	"github.com/movegrade/movegrade/internal/analysis"
	"github.com/movegrade/movegrade/internal/book"
	"github.com/movegrade/movegrade/internal/config"
	"github.com/movegrade/movegrade/internal/engine"
	"github.com/movegrade/movegrade/internal/logging"
)

var (
	configPath = flag.String("config", "", "config file (default: config.yaml in the data directory)")
	pgnPath    = flag.String("pgn", "", "PGN file to analyse (required)")
	enginePath = flag.String("engine", "", "UCI engine binary (overrides config)")
	bookPath   = flag.String("book", "", "Polyglot opening book (overrides config)")
	depth      = flag.Int("depth", 0, "search depth (overrides config)")
	cloud      = flag.Bool("cloud", false, "enable Lichess cloud evaluation lookups")
)

func main() {
	flag.Parse()

	if *pgnPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}
	if *enginePath != "" {
		cfg.Engine.Path = *enginePath
	}
	if *bookPath != "" {
		cfg.Book.Path = *bookPath
	}
	if *cloud {
		cfg.CloudEval.Enabled = true
	}

	logger := logging.Stderr()
	if cfg.LogFile != "" {
		fileLogger, err := logging.NewFile(cfg.LogFile)
		if err != nil {
			log.Fatal(err)
		}
		defer fileLogger.Close()
		logger = fileLogger
	}

	game, err := loadGame(*pgnPath)
	if err != nil {
		log.Fatal(err)
	}

	analyzer, err := analysis.New(cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer analyzer.Close()

	if !analyzer.BookAvailable() {
		log.Printf("Warning: no opening book loaded; every move counts as out of book")
	}

	start := time.Now()
	report, err := analyzer.AnalyzeGame(context.Background(), game, *depth)
	if err != nil {
		log.Fatal(err)
	}

	printReport(report)
	fmt.Printf("\nPlies analysed:  %d\n", len(report.Moves))
	fmt.Printf("Total time:      %s\n", time.Since(start).Round(time.Millisecond))
}

func loadConfig() (config.Config, error) {
	path := *configPath
	if path == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			return config.Config{}, err
		}
		path = p
	}
	return config.Load(path)
}

func loadGame(path string) (*chess.Game, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pgn, err := chess.PGN(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return chess.NewGame(pgn), nil
}

func printReport(report *analysis.GameReport) {
	fmt.Printf("%-5s %-8s %-6s %-9s %-6s %s\n", "Move", "Played", "Book", "Eval", "Depth", "Best Move")
	for _, mr := range report.Moves {
		num := moveNumber(mr.Ply)
		switch {
		case mr.InBook:
			fmt.Printf("%-5s %-8s %-6s %-9s %-6s %s\n", num, mr.SAN, "yes", "-", "-", bestBookMove(mr.BookMoves))
		case mr.Eval != nil:
			fmt.Printf("%-5s %-8s %-6s %-9s %-6d %s\n", num, mr.SAN, "no", evalString(mr.Eval), mr.Eval.Depth, mr.Eval.BestMove)
		default:
			fmt.Printf("%-5s %-8s %-6s %-9s %-6s %s\n", num, mr.SAN, "no", "timeout", "-", "")
		}
	}

	for _, seg := range report.Segments {
		if seg.State == book.SegmentIn {
			fmt.Printf("\nBook theory:     plies %d-%d\n", seg.StartPly, seg.EndPly)
		}
	}
}

// moveNumber renders a ply as "12." for white or "12..." for black.
func moveNumber(ply int) string {
	if ply%2 == 0 {
		return fmt.Sprintf("%d.", ply/2+1)
	}
	return fmt.Sprintf("%d...", ply/2+1)
}

// evalString renders the engine score from the analysed side's view.
// The evaluation runs on the position after the move, so the reported
// score is the opponent's; negate it to grade the move that was played.
func evalString(ev *engine.Evaluation) string {
	if ev.Mate != 0 {
		return fmt.Sprintf("#%d", -ev.Mate)
	}
	score := float64(-ev.ScoreCP) / 100
	s := fmt.Sprintf("%+.2f", score)
	if ev.Partial {
		s += "?"
	}
	return s
}

func bestBookMove(moves []book.BookMove) string {
	if len(moves) == 0 {
		return ""
	}
	return moves[0].UCI
}
