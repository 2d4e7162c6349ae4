package training

// LayerSpec is one dense layer of a topology.
type LayerSpec struct {
	Units      int    `json:"units"`
	Activation string `json:"activation"`
}

// Topology describes the network a Trainer builds.
type Topology struct {
	Layers    []LayerSpec `json:"layers"`
	Optimizer string      `json:"optimizer"`
	Loss      string      `json:"loss"`
	Metrics   []string    `json:"metrics,omitempty"`
}

// Model is a trainable handle returned by a Trainer.
type Model interface {
	// TrainEpoch runs one pass over the data and returns the epoch loss.
	TrainEpoch(inputs, outputs [][]float64, learningRate float64) (float64, error)
	Predict(inputs [][]float64) ([][]float64, error)
	Evaluate(inputs, outputs [][]float64) (map[string]float64, error)
	Save(path string) error
}

// Trainer builds fresh models or loads saved ones.
type Trainer interface {
	New(inputWidth, outputWidth int, topo Topology, seed int64) (Model, error)
	Load(path string) (Model, error)
}
