package rollout

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/brensch/meanfield/game"
)

func TestRunEpisode_FullLength(t *testing.T) {
	g := mustGame(t, game.Config{Size: 5, Horizon: 8, Populations: 3, Geometry: game.Torus})

	ep, err := RunEpisode(context.Background(), g, Options{
		RNG:       rand.New(rand.NewSource(7)),
		EpisodeID: "test_episode",
	})
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}

	if ep.ID != "test_episode" {
		t.Fatalf("episode id=%q", ep.ID)
	}
	wantSteps := g.Horizon() * g.Populations()
	if len(ep.Steps) != wantSteps {
		t.Fatalf("steps=%d want=%d", len(ep.Steps), wantSteps)
	}

	for i, s := range ep.Steps {
		if s.T != i/g.Populations() || s.Population != i%g.Populations() {
			t.Fatalf("step %d out of order: t=%d pop=%d", i, s.T, s.Population)
		}
		if s.Pos.X < 0 || s.Pos.X >= g.Size() || s.Pos.Y < 0 || s.Pos.Y >= g.Size() {
			t.Fatalf("step %d pos out of bounds: %v", i, s.Pos)
		}
		if len(s.Rewards) != g.Populations() || len(s.CellDensities) != g.Populations() {
			t.Fatalf("step %d vector lengths: rewards=%d densities=%d",
				i, len(s.Rewards), len(s.CellDensities))
		}
		for _, r := range s.Rewards {
			if math.IsNaN(r) || math.IsInf(r, 0) {
				t.Fatalf("step %d non-finite reward %v", i, r)
			}
		}
	}
}

func TestRunEpisode_DeterministicWithSeed(t *testing.T) {
	g := mustGame(t, game.Config{Size: 4, Horizon: 5, Populations: 3, Geometry: game.Square})

	run := func() *Episode {
		ep, err := RunEpisode(context.Background(), g, Options{
			RNG:       rand.New(rand.NewSource(42)),
			EpisodeID: "seeded",
		})
		if err != nil {
			t.Fatalf("RunEpisode: %v", err)
		}
		return ep
	}

	a, b := run(), run()
	if len(a.Steps) != len(b.Steps) {
		t.Fatalf("step counts differ: %d vs %d", len(a.Steps), len(b.Steps))
	}
	for i := range a.Steps {
		if a.Steps[i].Pos != b.Steps[i].Pos || a.Steps[i].Action != b.Steps[i].Action {
			t.Fatalf("step %d differs: %+v vs %+v", i, a.Steps[i], b.Steps[i])
		}
	}
	for p := range a.TotalRewards {
		if a.TotalRewards[p] != b.TotalRewards[p] {
			t.Fatalf("total rewards differ for population %d", p)
		}
	}
}

func TestRunEpisode_Cancellation(t *testing.T) {
	g := mustGame(t, game.Config{Size: 5, Horizon: 50, Populations: 3, Geometry: game.Square})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RunEpisode(ctx, g, Options{}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestStepRows_Conversion(t *testing.T) {
	g := mustGame(t, game.Config{Size: 3, Horizon: 2, Populations: 3, Geometry: game.Square})
	ep, err := RunEpisode(context.Background(), g, Options{
		RNG:       rand.New(rand.NewSource(1)),
		EpisodeID: "conv",
	})
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}

	rows := ep.StepRows("test")
	if len(rows) != len(ep.Steps) {
		t.Fatalf("rows=%d want=%d", len(rows), len(ep.Steps))
	}
	for i, r := range rows {
		s := ep.Steps[i]
		if r.EpisodeID != "conv" || r.Source != "test" {
			t.Fatalf("row %d tags: %+v", i, r)
		}
		if int(r.T) != s.T || int(r.Population) != s.Population {
			t.Fatalf("row %d keys: %+v vs %+v", i, r, s)
		}
		if r.Reward != s.Rewards[s.Population] {
			t.Fatalf("row %d reward=%v want=%v", i, r.Reward, s.Rewards[s.Population])
		}
		if r.Geometry != "square" || int(r.Size) != ep.Size || int(r.Horizon) != ep.Horizon {
			t.Fatalf("row %d config fields: %+v", i, r)
		}
	}
}
