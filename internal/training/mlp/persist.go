package mlp

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"reitloop/internal/training"
)

type snapshot struct {
	InputWidth int               `json:"input_width"`
	Topology   training.Topology `json:"topology"`
	Layers     []*layer          `json:"layers"`
	SavedAt    time.Time         `json:"saved_at"`
}

// Save writes the network as JSON, replacing path atomically.
func (n *Network) Save(path string) error {
	n.mu.Lock()
	data, err := json.MarshalIndent(snapshot{
		InputWidth: n.inWidth,
		Topology:   n.topology,
		Layers:     n.layers,
		SavedAt:    time.Now().UTC(),
	}, "", "  ")
	n.mu.Unlock()
	if err != nil {
		return fmt.Errorf("mlp: encode: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("mlp: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

func load(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mlp: read %s: %w", path, err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("mlp: decode %s: %w", path, err)
	}
	if snap.InputWidth <= 0 || len(snap.Layers) == 0 {
		return nil, fmt.Errorf("mlp: %s holds no network", path)
	}
	in := snap.InputWidth
	for i, l := range snap.Layers {
		if l == nil || len(l.Weights) != len(l.Biases) || !validActivation(l.Activation) {
			return nil, fmt.Errorf("mlp: %s layer %d is malformed", path, i)
		}
		for _, row := range l.Weights {
			if len(row) != in {
				return nil, fmt.Errorf("mlp: %s layer %d expects %d inputs", path, i, in)
			}
		}
		in = len(l.Biases)
	}
	return &Network{
		layers:   snap.Layers,
		topology: snap.Topology,
		inWidth:  snap.InputWidth,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Trainer builds and loads networks.
type Trainer struct{}

var _ training.Trainer = Trainer{}

func NewTrainer() Trainer { return Trainer{} }

func (Trainer) New(inputWidth, outputWidth int, topo training.Topology, seed int64) (training.Model, error) {
	n, err := newNetwork(inputWidth, outputWidth, topo, seed)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (Trainer) Load(path string) (training.Model, error) {
	n, err := load(path)
	if err != nil {
		return nil, err
	}
	return n, nil
}
