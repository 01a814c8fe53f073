package inference

import (
	"math"
	"os"
	"testing"

	"github.com/brensch/meanfield/game"
)

func TestSoftmax_Normalizes(t *testing.T) {
	probs := softmax([]float32{0.5, -1, 3, 0, 0.25})
	if len(probs) != 5 {
		t.Fatalf("len=%d want=5", len(probs))
	}
	sum := 0.0
	argmax := 0
	for i, p := range probs {
		if p < 0 || p > 1 {
			t.Fatalf("probs[%d]=%v out of range", i, p)
		}
		sum += p
		if p > probs[argmax] {
			argmax = i
		}
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("sum=%v", sum)
	}
	if argmax != 2 {
		t.Fatalf("argmax=%d want=2", argmax)
	}
}

func TestSoftmax_LargeLogitsStable(t *testing.T) {
	probs := softmax([]float32{1000, 1000, 999, -1000, 0})
	sum := 0.0
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			t.Fatalf("probs[%d]=%v", i, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("sum=%v", sum)
	}
}

// TestOnnxPolicy_Probs exercises a real model when one is available.
// Export a policy net and point MEANFIELD_POLICY_ONNX at it to run.
func TestOnnxPolicy_Probs(t *testing.T) {
	modelPath := os.Getenv("MEANFIELD_POLICY_ONNX")
	if modelPath == "" {
		t.Skip("MEANFIELD_POLICY_ONNX not set")
	}

	g, err := game.NewGame(game.DefaultConfig())
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	policy, err := NewOnnxPolicy(modelPath, g)
	if err != nil {
		t.Fatalf("NewOnnxPolicy: %v", err)
	}
	defer policy.Close()

	for p := 0; p < g.Populations(); p++ {
		probs, err := policy.Probs(p, game.Position{X: 1, Y: 2}, 3)
		if err != nil {
			t.Fatalf("Probs: %v", err)
		}
		if len(probs) != game.NumActions {
			t.Fatalf("len=%d want=%d", len(probs), game.NumActions)
		}
		sum := 0.0
		for _, v := range probs {
			sum += v
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Fatalf("population %d probs sum to %v", p, sum)
		}
	}
}
