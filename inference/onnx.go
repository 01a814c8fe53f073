// Package inference runs learned movement policies exported as ONNX
// models. A policy net maps an agent observation (normalized position and
// time plus a population one-hot) to logits over the five movement
// actions; policies are trained elsewhere and only evaluated here.
package inference

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/brensch/meanfield/game"
	ort "github.com/yalue/onnxruntime_go"
)

// PolicySize is the number of output logits: one per movement action.
const PolicySize = game.NumActions

var ortInitOnce sync.Once
var ortInitErr error

// OnnxPolicy evaluates an ONNX policy net. It implements the rollout
// Policy interface.
//
// The session is serialized with a mutex: rollout workers each hold their
// own policy handle, so per-call batching buys nothing here.
type OnnxPolicy struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession

	size        int
	horizon     int
	populations int
	obsSize     int
}

// NewOnnxPolicy loads the model at modelPath for the given game's
// dimensions. The model must take an "obs" tensor of shape
// [batch, 3+populations] and produce a "policy" tensor of shape
// [batch, 5].
func NewOnnxPolicy(modelPath string, g *game.Game) (*OnnxPolicy, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("policy model: %w", err)
	}

	if runtime.GOOS == "linux" {
		if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
			ort.SetSharedLibraryPath(p)
		} else {
			cwd, _ := os.Getwd()
			for _, name := range []string{
				"libonnxruntime.so",
				"libonnxruntime.so.1",
			} {
				abs := filepath.Join(cwd, name)
				if _, err := os.Stat(abs); err == nil {
					ort.SetSharedLibraryPath(abs)
					break
				}
			}
		}
	}

	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("failed to init ort: %w", ortInitErr)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	// Workers run many sessions side by side; keep each one single
	// threaded to avoid contention.
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{"obs"}, []string{"policy"}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &OnnxPolicy{
		session:     session,
		size:        g.Size(),
		horizon:     g.Horizon(),
		populations: g.Populations(),
		obsSize:     3 + g.Populations(),
	}, nil
}

func (p *OnnxPolicy) Close() error {
	return p.session.Destroy()
}

// Probs evaluates the policy net for one observation and returns softmax
// probabilities over the movement actions.
func (p *OnnxPolicy) Probs(population int, pos game.Position, t int) ([]float64, error) {
	if population < 0 || population >= p.populations {
		return nil, fmt.Errorf("population %d out of range [0, %d)", population, p.populations)
	}

	obs := make([]float32, p.obsSize)
	obs[0] = float32(pos.X) / float32(p.size)
	obs[1] = float32(pos.Y) / float32(p.size)
	obs[2] = float32(t) / float32(p.horizon)
	obs[3+population] = 1

	p.mu.Lock()
	defer p.mu.Unlock()

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(p.obsSize)), obs)
	if err != nil {
		return nil, err
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, PolicySize))
	if err != nil {
		return nil, err
	}
	defer outputTensor.Destroy()

	if err := p.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, err
	}

	return softmax(outputTensor.GetData()), nil
}

func softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxV := float64(logits[0])
	for _, l := range logits[1:] {
		if float64(l) > maxV {
			maxV = float64(l)
		}
	}
	sum := 0.0
	for i, l := range logits {
		e := math.Exp(float64(l) - maxV)
		out[i] = e
		sum += e
	}
	if sum > 0 {
		for i := range out {
			out[i] /= sum
		}
	}
	return out
}
