package weights

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"reitloop/internal/logger"
	"reitloop/internal/types"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const seedSchema = `{
  "type": "object",
  "required": ["seeds"],
  "additionalProperties": false,
  "properties": {
    "seeds": {
      "type": "object",
      "propertyNames": {"enum": ["valuation", "policy", "news", "risk"]},
      "additionalProperties": {
        "type": "array",
        "minItems": 1,
        "items": {
          "type": "object",
          "required": ["name", "value"],
          "additionalProperties": false,
          "properties": {
            "name": {"type": "string", "minLength": 1},
            "value": {"type": "number", "minimum": 0, "maximum": 1},
            "description": {"type": "string"}
          }
        }
      }
    }
  }
}`

// Seed 表示一条默认权重。
type Seed struct {
	Name        string  `yaml:"name" json:"name"`
	Value       float64 `yaml:"value" json:"value"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
}

// FileConfig 对应权重种子文件的结构。
type FileConfig struct {
	Seeds map[string][]Seed `yaml:"seeds" json:"seeds"`
}

// Snapshot 是已加载种子的只读快照。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Seeds    map[types.AgentType][]Seed
}

// ChangeListener 在重载成功后被调用。
type ChangeListener func(Snapshot)

// SeedSource provides default weights for agents without stored weights.
type SeedSource interface {
	Seeds(agent types.AgentType) []types.WeightConfig
}

// Registry 从 YAML 文件提供默认权重，文件变更时自动重载；
// 校验失败的重载会保留上一份快照。
type Registry struct {
	path   string
	v      *viper.Viper
	schema *jsonschema.Schema

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("weight seed registry requires path")
	}
	schema, err := compileSchema(seedSchema)
	if err != nil {
		return nil, fmt.Errorf("compile seed schema: %w", err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read weight seeds failed: %w", err)
	}
	r := &Registry{path: path, v: v, schema: schema}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("weight seed reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// OnChange 注册重载监听器。
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Seeds returns the agent's default weights, or DefaultSeeds when the file
// has none for it.
func (r *Registry) Seeds(agent types.AgentType) []types.WeightConfig {
	r.mu.RLock()
	seeds := r.snapshot.Seeds[agent]
	r.mu.RUnlock()
	if len(seeds) == 0 {
		return DefaultSeeds(agent)
	}
	out := make([]types.WeightConfig, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, types.WeightConfig{
			AgentType:   agent,
			Name:        s.Name,
			Value:       s.Value,
			Description: s.Description,
			Source:      types.WeightManual,
		})
	}
	return out
}

// DefaultSeeds spreads weight evenly over the canonical features.
func DefaultSeeds(agent types.AgentType) []types.WeightConfig {
	names := types.FeatureNames()
	out := make([]types.WeightConfig, 0, len(names))
	for _, name := range names {
		out = append(out, types.WeightConfig{
			AgentType: agent,
			Name:      name,
			Value:     1 / float64(len(names)),
			Source:    types.WeightManual,
		})
	}
	return out
}

type defaultSeeds struct{}

func (defaultSeeds) Seeds(agent types.AgentType) []types.WeightConfig { return DefaultSeeds(agent) }

func (r *Registry) reload() error {
	cfg, err := readSeedFile(r.path)
	if err != nil {
		return err
	}
	if err := r.validate(cfg); err != nil {
		return fmt.Errorf("weight seeds %s: %w", filepath.Base(r.path), err)
	}
	seeds := make(map[types.AgentType][]Seed, len(cfg.Seeds))
	total := 0
	for name, list := range cfg.Seeds {
		agent, err := types.ParseAgentType(name)
		if err != nil {
			return err
		}
		norm := make([]Seed, 0, len(list))
		for _, s := range list {
			s.Name = strings.TrimSpace(s.Name)
			s.Description = strings.TrimSpace(s.Description)
			norm = append(norm, s)
		}
		sort.Slice(norm, func(i, j int) bool { return norm[i].Name < norm[j].Name })
		seeds[agent] = norm
		total += len(norm)
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Seeds:    seeds,
	}
	r.mu.Unlock()
	logger.Infof("Weight seed registry loaded %d seeds for %d agents from %s", total, len(seeds), filepath.Base(r.path))
	return nil
}

func (r *Registry) validate(cfg FileConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return r.schema.Validate(doc)
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("weight seed listener")
			cb(snap)
		}(fn)
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Seeds:    make(map[types.AgentType][]Seed, len(src.Seeds)),
	}
	for agent, seeds := range src.Seeds {
		dst.Seeds[agent] = append([]Seed(nil), seeds...)
	}
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

func compileSchema(schema string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("seeds.json", strings.NewReader(schema)); err != nil {
		return nil, err
	}
	return compiler.Compile("seeds.json")
}

func readSeedFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read weight seeds failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse weight seeds failed: %w", err)
	}
	return cfg, nil
}
