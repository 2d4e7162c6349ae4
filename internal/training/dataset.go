package training

import (
	"encoding/json"

	"reitloop/internal/types"

	"github.com/tidwall/gjson"
)

// Scaler maps actual values into [0,1] and back.
type Scaler struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (s Scaler) span() float64 { return s.Max - s.Min }

func (s Scaler) Scale(v float64) float64 {
	if s.span() == 0 {
		return 0.5
	}
	return (v - s.Min) / s.span()
}

func (s Scaler) Unscale(v float64) float64 {
	if s.span() == 0 {
		return s.Min
	}
	return s.Min + v*s.span()
}

// Dataset is the matrix form of a batch of actualized predictions.
type Dataset struct {
	Inputs  [][]float64
	Outputs [][]float64
	Actuals []float64
	Scaler  Scaler
}

func (d Dataset) Len() int { return len(d.Inputs) }

// BuildDataset turns actualized predictions into a training set. Inputs are
// the snapshot features in canonical order, read either at the top level or
// under a nested "features" object; missing values are 0.
func BuildDataset(recs []types.PredictionRecord) Dataset {
	var ds Dataset
	first := true
	for _, rec := range recs {
		if rec.Actual == nil {
			continue
		}
		actual := rec.Actual.ActualValue
		if first || actual < ds.Scaler.Min {
			ds.Scaler.Min = actual
		}
		if first || actual > ds.Scaler.Max {
			ds.Scaler.Max = actual
		}
		first = false
		ds.Inputs = append(ds.Inputs, snapshotRow(rec.InputFeatures))
		ds.Actuals = append(ds.Actuals, actual)
	}
	ds.Outputs = make([][]float64, len(ds.Actuals))
	for i, a := range ds.Actuals {
		ds.Outputs[i] = []float64{ds.Scaler.Scale(a)}
	}
	return ds
}

func snapshotRow(snapshot map[string]any) []float64 {
	row := make([]float64, types.FeatureWidth)
	if len(snapshot) == 0 {
		return row
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return row
	}
	for i, name := range types.FeatureNames() {
		v := gjson.GetBytes(raw, name)
		if !v.Exists() {
			v = gjson.GetBytes(raw, "features."+name)
		}
		if v.Type == gjson.Number {
			row[i] = v.Float()
		}
	}
	return row
}
