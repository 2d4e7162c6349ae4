// Package mlp is a small dense feed-forward network trained with per-sample
// SGD on squared error. It implements training.Trainer.
package mlp

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"reitloop/internal/training"
)

const (
	ActivationReLU    = "relu"
	ActivationLinear  = "linear"
	ActivationSigmoid = "sigmoid"
	ActivationTanh    = "tanh"
)

type layer struct {
	Weights    [][]float64 `json:"weights"` // [out][in]
	Biases     []float64   `json:"biases"`
	Activation string      `json:"activation"`
}

func newLayer(in, out int, activation string, rng *rand.Rand) *layer {
	// He-style scale keeps ReLU activations from dying at init.
	scale := math.Sqrt(2.0 / float64(in))
	l := &layer{
		Weights:    make([][]float64, out),
		Biases:     make([]float64, out),
		Activation: activation,
	}
	for i := range l.Weights {
		l.Weights[i] = make([]float64, in)
		for j := range l.Weights[i] {
			l.Weights[i][j] = rng.NormFloat64() * scale
		}
	}
	return l
}

func (l *layer) forward(in []float64) (z, a []float64) {
	z = make([]float64, len(l.Biases))
	a = make([]float64, len(l.Biases))
	for i, w := range l.Weights {
		sum := l.Biases[i]
		for j, x := range in {
			sum += w[j] * x
		}
		z[i] = sum
		a[i] = activate(l.Activation, sum)
	}
	return z, a
}

func activate(name string, x float64) float64 {
	switch name {
	case ActivationReLU:
		if x > 0 {
			return x
		}
		return 0
	case ActivationSigmoid:
		return 1 / (1 + math.Exp(-x))
	case ActivationTanh:
		return math.Tanh(x)
	default:
		return x
	}
}

// derivative takes the pre-activation z and the activation a.
func derivative(name string, z, a float64) float64 {
	switch name {
	case ActivationReLU:
		if z > 0 {
			return 1
		}
		return 0
	case ActivationSigmoid:
		return a * (1 - a)
	case ActivationTanh:
		return 1 - a*a
	default:
		return 1
	}
}

// Network is a trained or trainable model.
type Network struct {
	mu       sync.Mutex
	layers   []*layer
	topology training.Topology
	inWidth  int
	rng      *rand.Rand
}

var _ training.Model = (*Network)(nil)

func validActivation(name string) bool {
	switch name {
	case ActivationReLU, ActivationLinear, ActivationSigmoid, ActivationTanh:
		return true
	}
	return false
}

func newNetwork(inputWidth, outputWidth int, topo training.Topology, seed int64) (*Network, error) {
	if inputWidth <= 0 || outputWidth <= 0 {
		return nil, fmt.Errorf("mlp: invalid shape %dx%d", inputWidth, outputWidth)
	}
	if opt := strings.ToLower(topo.Optimizer); opt != "" && opt != "sgd" {
		return nil, fmt.Errorf("mlp: unsupported optimizer %q", topo.Optimizer)
	}
	if loss := strings.ToLower(topo.Loss); loss != "" && loss != "mse" {
		return nil, fmt.Errorf("mlp: unsupported loss %q", topo.Loss)
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	n := &Network{topology: topo, inWidth: inputWidth, rng: rng}
	in := inputWidth
	for i, spec := range topo.Layers {
		act := strings.ToLower(strings.TrimSpace(spec.Activation))
		if act == "" {
			act = ActivationReLU
		}
		if spec.Units <= 0 || !validActivation(act) {
			return nil, fmt.Errorf("mlp: invalid layer %d (%d units, %q)", i, spec.Units, spec.Activation)
		}
		n.layers = append(n.layers, newLayer(in, spec.Units, act, rng))
		in = spec.Units
	}
	// Targets are scaled into [0,1].
	n.layers = append(n.layers, newLayer(in, outputWidth, ActivationSigmoid, rng))
	return n, nil
}

func (n *Network) checkInputs(inputs [][]float64) error {
	for i, row := range inputs {
		if len(row) != n.inWidth {
			return fmt.Errorf("mlp: row %d has %d features, want %d", i, len(row), n.inWidth)
		}
	}
	return nil
}

func (n *Network) outWidth() int {
	return len(n.layers[len(n.layers)-1].Biases)
}

func (n *Network) checkOutputs(inputs, outputs [][]float64) error {
	if len(inputs) != len(outputs) {
		return fmt.Errorf("mlp: %d input rows vs %d output rows", len(inputs), len(outputs))
	}
	for i, row := range outputs {
		if len(row) != n.outWidth() {
			return fmt.Errorf("mlp: output row %d has %d values, want %d", i, len(row), n.outWidth())
		}
	}
	return n.checkInputs(inputs)
}

func (n *Network) predictRow(x []float64) []float64 {
	a := x
	for _, l := range n.layers {
		_, a = l.forward(a)
	}
	return a
}

// TrainEpoch runs one shuffled SGD pass and returns the mean squared error
// observed before each sample's update.
func (n *Network) TrainEpoch(inputs, outputs [][]float64, learningRate float64) (float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(inputs) == 0 {
		return 0, fmt.Errorf("mlp: empty batch")
	}
	if err := n.checkOutputs(inputs, outputs); err != nil {
		return 0, err
	}
	order := n.rng.Perm(len(inputs))
	var total float64
	for _, idx := range order {
		total += n.step(inputs[idx], outputs[idx], learningRate)
	}
	return total / float64(len(inputs)), nil
}

func (n *Network) step(x, y []float64, lr float64) float64 {
	zs := make([][]float64, len(n.layers))
	as := make([][]float64, len(n.layers)+1)
	as[0] = x
	for i, l := range n.layers {
		zs[i], as[i+1] = l.forward(as[i])
	}

	out := as[len(as)-1]
	delta := make([]float64, len(out))
	var loss float64
	for i := range out {
		diff := out[i] - y[i]
		loss += diff * diff
		delta[i] = 2 * diff / float64(len(out)) * derivative(n.layers[len(n.layers)-1].Activation, zs[len(zs)-1][i], out[i])
	}
	loss /= float64(len(out))

	for li := len(n.layers) - 1; li >= 0; li-- {
		l := n.layers[li]
		in := as[li]
		var prev []float64
		if li > 0 {
			prev = make([]float64, len(in))
			below := n.layers[li-1]
			for j := range in {
				var sum float64
				for k := range delta {
					sum += delta[k] * l.Weights[k][j]
				}
				prev[j] = sum * derivative(below.Activation, zs[li-1][j], in[j])
			}
		}
		for k := range delta {
			for j := range in {
				l.Weights[k][j] -= lr * delta[k] * in[j]
			}
			l.Biases[k] -= lr * delta[k]
		}
		delta = prev
	}
	return loss
}

func (n *Network) Predict(inputs [][]float64) ([][]float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.checkInputs(inputs); err != nil {
		return nil, err
	}
	out := make([][]float64, len(inputs))
	for i, row := range inputs {
		out[i] = n.predictRow(row)
	}
	return out, nil
}

// Evaluate returns the topology's named metrics (mse, rmse, mae). Unknown
// names are ignored.
func (n *Network) Evaluate(inputs, outputs [][]float64) (map[string]float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.checkOutputs(inputs, outputs); err != nil {
		return nil, err
	}
	names := n.topology.Metrics
	if len(names) == 0 {
		names = []string{"mse"}
	}
	var sq, abs float64
	count := 0
	for i, row := range inputs {
		pred := n.predictRow(row)
		for k := range pred {
			d := pred[k] - outputs[i][k]
			sq += d * d
			abs += math.Abs(d)
			count++
		}
	}
	result := make(map[string]float64, len(names))
	if count == 0 {
		return result, nil
	}
	mse := sq / float64(count)
	for _, name := range names {
		switch strings.ToLower(name) {
		case "mse":
			result["mse"] = mse
		case "rmse":
			result["rmse"] = math.Sqrt(mse)
		case "mae":
			result["mae"] = abs / float64(count)
		}
	}
	return result, nil
}
