// Command rollout generates mean-field predator-prey episodes in parallel
// and archives them as parquet batches.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/meanfield/game"
	"github.com/brensch/meanfield/inference"
	"github.com/brensch/meanfield/logging"
	"github.com/brensch/meanfield/rollout"
	"github.com/brensch/meanfield/store"
)

var totalEpisodes atomic.Int64
var totalSteps atomic.Int64

type EpisodeUpdate struct {
	WorkerID int
	Episode  string
	Steps    int
	Rewards  []float64
}

type writeRequest struct {
	rows []store.StepRow
}

type model struct {
	episodes  int
	steps     int64
	startTime time.Time
	recent    []string
	updates   chan EpisodeUpdate
}

func initialModel(updates chan EpisodeUpdate) model {
	return model{startTime: time.Now(), updates: updates}
}

type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func waitForUpdate(updates chan EpisodeUpdate) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		m.steps = totalSteps.Load()
		return m, tickCmd()
	case EpisodeUpdate:
		m.episodes++
		line := fmt.Sprintf("Worker %d: %s, %d steps, returns %s",
			msg.WorkerID, msg.Episode, msg.Steps, formatRewards(msg.Rewards))
		m.recent = append([]string{line}, m.recent...)
		if len(m.recent) > 10 {
			m.recent = m.recent[:10]
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	episodesPerSec := float64(m.episodes) / duration.Seconds()
	stepsPerSec := float64(m.steps) / duration.Seconds()
	if duration.Seconds() < 1 {
		episodesPerSec = 0
		stepsPerSec = 0
	}

	s := fmt.Sprintf("Episodes:     %d\n", m.episodes)
	s += fmt.Sprintf("Steps:        %d\n", m.steps)
	s += fmt.Sprintf("Duration:     %s\n", duration.Round(time.Second))
	s += fmt.Sprintf("Episodes/Sec: %.2f\n", episodesPerSec)
	s += fmt.Sprintf("Steps/Sec:    %.2f\n\n", stepsPerSec)

	s += "Recent episodes:\n"
	for _, line := range m.recent {
		s += line + "\n"
	}
	s += "\nPress q to quit.\n"
	return s
}

func formatRewards(rewards []float64) string {
	out := "["
	for i, r := range rewards {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%.3f", r)
	}
	return out + "]"
}

func main() {
	size := flag.Int("size", game.DefaultSize, "Grid side length")
	horizon := flag.Int("horizon", game.DefaultHorizon, "Episode length in decision cycles")
	populations := flag.Int("populations", game.DefaultPopulations, "Number of populations")
	geometryName := flag.String("geometry", "square", "Boundary policy: square or torus")
	rewardMatrixStr := flag.String("reward-matrix", "", "Row-major NxN interaction matrix, whitespace separated (default: built-in 3-population matrix)")
	workers := flag.Int("workers", 8, "Number of rollout workers")
	maxEpisodes := flag.Int64("max-episodes", 0, "If > 0, stop after this many episodes")
	episodesPerFlush := flag.Int("episodes-per-flush", 50, "Episodes to buffer per parquet flush")
	outDir := flag.String("out-dir", "data/episodes", "Output directory for parquet batches")
	modelPath := flag.String("model", "", "Optional ONNX policy model; uniform random policy if empty")
	useTUI := flag.Bool("tui", false, "Show a live TUI instead of plain logs")
	flag.Parse()

	logger := slog.New(logging.NewPrettyJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	geometry, err := game.ParseGeometry(*geometryName)
	if err != nil {
		log.Fatalf("bad -geometry: %v", err)
	}
	matrix, err := game.ParseRewardMatrix(*rewardMatrixStr)
	if err != nil {
		log.Fatalf("bad -reward-matrix: %v", err)
	}

	g, err := game.NewGame(game.Config{
		Size:         *size,
		Horizon:      *horizon,
		Populations:  *populations,
		Geometry:     geometry,
		RewardMatrix: matrix,
	})
	if err != nil {
		log.Fatalf("game configuration: %v", err)
	}

	var policy rollout.Policy = rollout.UniformPolicy{}
	if *modelPath != "" {
		onnxPolicy, err := inference.NewOnnxPolicy(*modelPath, g)
		if err != nil {
			log.Fatalf("load policy model: %v", err)
		}
		defer onnxPolicy.Close()
		policy = onnxPolicy
		logger.Info("loaded policy model", "path", *modelPath)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	logger.Info("starting rollouts",
		"size", g.Size(), "horizon", g.Horizon(), "populations", g.Populations(),
		"geometry", g.Geometry().String(), "workers", *workers)

	updates := make(chan EpisodeUpdate, *workers)
	writeReqs := make(chan writeRequest, (*workers)*4)

	writerDone := make(chan struct{})
	go func() {
		parquetWriterLoop(*outDir, *episodesPerFlush, writeReqs)
		close(writerDone)
	}()

	var workerWG sync.WaitGroup
	for i := 0; i < *workers; i++ {
		workerWG.Add(1)
		go func(workerID int) {
			defer workerWG.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)*1000003))
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				ep, err := rollout.RunEpisode(ctx, g, rollout.Options{
					Policy:    policy,
					RNG:       rng,
					EpisodeID: fmt.Sprintf("rollout_%d_%d", time.Now().UnixNano(), workerID),
				})
				if err != nil {
					if ctx.Err() == nil {
						log.Printf("Worker %d: episode failed: %v", workerID, err)
					}
					continue
				}
				totalSteps.Add(int64(len(ep.Steps)))
				total := totalEpisodes.Add(1)
				if *maxEpisodes > 0 && total >= *maxEpisodes {
					cancel()
				}

				writeReqs <- writeRequest{rows: ep.StepRows("rollout")}

				// Avoid blocking shutdown if the UI loop stops consuming.
				select {
				case updates <- EpisodeUpdate{
					WorkerID: workerID,
					Episode:  ep.ID,
					Steps:    len(ep.Steps),
					Rewards:  ep.TotalRewards,
				}:
				default:
				}
			}
		}(i)
	}

	if *useTUI {
		p := tea.NewProgram(initialModel(updates), tea.WithAltScreen())
		go func() {
			<-ctx.Done()
			p.Quit()
		}()
		if _, err := p.Run(); err != nil {
			log.Printf("TUI error: %v", err)
		}
		cancel()
		workerWG.Wait()
		close(writeReqs)
		<-writerDone
		logger.Info("shutdown complete", "episodes", totalEpisodes.Load())
		return
	}

	startTime := time.Now()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Shutdown requested; waiting for workers to finish current episodes...")
			workerWG.Wait()
			close(writeReqs)
			<-writerDone
			log.Printf("Shutdown complete: final parquet flush done (episodes=%d)", totalEpisodes.Load())
			return
		case update := <-updates:
			log.Printf("Worker %d: %s, %d steps, returns %s",
				update.WorkerID, update.Episode, update.Steps, formatRewards(update.Rewards))
		case <-ticker.C:
			duration := time.Since(startTime)
			steps := totalSteps.Load()
			log.Printf("Stats: Episodes: %d, Steps/s: %.2f",
				totalEpisodes.Load(), float64(steps)/duration.Seconds())
		}
	}
}

func parquetWriterLoop(outDir string, episodesPerFlush int, in <-chan writeRequest) {
	if episodesPerFlush <= 0 {
		episodesPerFlush = 50
	}

	pendingRows := make([]store.StepRow, 0, 1024)
	pendingEpisodes := 0

	flush := func() {
		if pendingEpisodes == 0 || len(pendingRows) == 0 {
			return
		}
		outPath, err := store.WriteBatchParquetAtomic(outDir, pendingRows)
		if err != nil {
			log.Printf("Parquet flush failed (episodes=%d rows=%d): %v", pendingEpisodes, len(pendingRows), err)
		} else {
			log.Printf("Parquet flush ok: %s (episodes=%d rows=%d)", outPath, pendingEpisodes, len(pendingRows))
		}
		pendingRows = pendingRows[:0]
		pendingEpisodes = 0
	}

	for req := range in {
		if len(req.rows) == 0 {
			continue
		}
		pendingRows = append(pendingRows, req.rows...)
		pendingEpisodes++
		if pendingEpisodes >= episodesPerFlush {
			flush()
		}
	}
	flush()
}
