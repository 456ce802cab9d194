package hyperfold

import (
	"fmt"
	"os"

	"github.com/absmach/hyperfold/node"
	"github.com/absmach/hyperfold/pkg/aggregator"
	"github.com/absmach/hyperfold/pkg/peers"
	"github.com/pelletier/go-toml"
)

// Config is the optional TOML file of a node. Values set here are
// overridden by the environment.
type Config struct {
	Node      NodeConfig      `toml:"node"`
	Layers    []LayerConfig   `toml:"layers"`
	Optimizer OptimizerConfig `toml:"optimizer"`
}

type NodeConfig struct {
	ID      string   `toml:"id"`
	Address string   `toml:"address"`
	Role    string   `toml:"role"`
	Seeds   []string `toml:"seeds"`
}

type LayerConfig struct {
	Index   int `toml:"index"`
	Weights int `toml:"weights"`
	Bias    int `toml:"bias"`
}

type OptimizerConfig struct {
	LearningRate float64 `toml:"learning_rate"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Shapes indexes the configured layers. A layer listed twice is rejected.
func (c *Config) Shapes() (map[int]aggregator.LayerShape, error) {
	shapes := make(map[int]aggregator.LayerShape, len(c.Layers))
	for _, l := range c.Layers {
		if l.Index < 0 {
			return nil, fmt.Errorf("%w: %d", aggregator.ErrNegativeLayer, l.Index)
		}
		if _, ok := shapes[l.Index]; ok {
			return nil, fmt.Errorf("layer %d configured twice", l.Index)
		}
		shapes[l.Index] = aggregator.LayerShape{Weights: l.Weights, Bias: l.Bias}
	}

	return shapes, nil
}

func (c *Config) Seeds() ([]node.Seed, error) {
	return node.ParseSeeds(c.Node.Seeds)
}

// Role returns the configured role, or def when none is set.
func (c *Config) Role(def peers.Role) (peers.Role, error) {
	if c.Node.Role == "" {
		return def, nil
	}

	return peers.ParseRole(c.Node.Role)
}
