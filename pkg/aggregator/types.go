package aggregator

// SelfID identifies the aggregating node's own contribution.
const SelfID = "SELF"

type Status uint8

const (
	Pending Status = iota
	Complete
	Stale
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Complete:
		return "complete"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Contribution is a batch-weighted gradient for one layer.
type Contribution struct {
	LayerIndex     int       `json:"layer_index"`
	WeightGradient []float64 `json:"weight_gradient"`
	BiasGradient   []float64 `json:"bias_gradient"`
	BatchSize      int       `json:"batch_size"`
}

// Result is returned by Aggregate. Contribution is set only for Complete and
// holds the batch-weighted mean with BatchSize equal to the total batch.
type Result struct {
	Status       Status        `json:"status"`
	Contribution *Contribution `json:"contribution,omitempty"`
}

// LayerShape fixes the gradient lengths accepted for a layer.
type LayerShape struct {
	Weights int `json:"weights" toml:"weights"`
	Bias    int `json:"bias" toml:"bias"`
}

// State is a copy of an in-flight layer accumulator.
type State struct {
	WeightedSumWeight []float64 `json:"weighted_sum_weight"`
	WeightedSumBias   []float64 `json:"weighted_sum_bias"`
	TotalBatch        int       `json:"total_batch"`
	Contributors      []string  `json:"contributors"`
}

type LayerProgress struct {
	LayerIndex   int      `json:"layer_index"`
	Contributors []string `json:"contributors"`
	TotalBatch   int      `json:"total_batch"`
	Completed    bool     `json:"completed"`
}
