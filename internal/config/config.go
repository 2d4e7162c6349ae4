package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix 是环境变量覆盖的前缀：REITLOOP_TRAINING_EPOCHS 对应 training.epochs，
// 前缀后的第一段为配置分区名。
const EnvPrefix = "REITLOOP_"

// Load 读取配置文件及其 include，叠加环境变量覆盖与默认值后做校验。
func Load(path string) (*Config, error) {
	files, err := newIncludeResolver().resolve(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, f := range files {
		if err := v.MergeConfigMap(f.settings); err != nil {
			return nil, fmt.Errorf("merge config %s: %w", f.path, err)
		}
	}
	applyEnvOverrides(v, os.Environ())

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	setKeys := make(keySet)
	collectSettingsKeys(v.AllSettings(), setKeys)
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(v *viper.Viper, environ []string) {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		section, key, ok := strings.Cut(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), "_")
		if !ok || section == "" || key == "" {
			continue
		}
		v.Set(section+"."+key, value)
	}
}

type configFile struct {
	path     string
	settings map[string]any
}

// includeResolver 负责排序配置文件：被 include 的文件先合并，每个文件只读取一次。
type includeResolver struct {
	visited  map[string]bool
	visiting map[string]bool
	ordered  []configFile
}

func newIncludeResolver() *includeResolver {
	return &includeResolver{visited: map[string]bool{}, visiting: map[string]bool{}}
}

func (r *includeResolver) resolve(path string) ([]configFile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := r.visit(abs); err != nil {
		return nil, err
	}
	return r.ordered, nil
}

func (r *includeResolver) visit(path string) error {
	path = filepath.Clean(path)
	if r.visiting[path] {
		return fmt.Errorf("include cycle detected: %s", path)
	}
	if r.visited[path] {
		return nil
	}
	r.visiting[path] = true

	tmp := viper.New()
	tmp.SetConfigFile(path)
	if err := tmp.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	includes, err := includeList(tmp.Get("include"))
	if err != nil {
		return fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := r.visit(inc); err != nil {
			return err
		}
	}

	settings := tmp.AllSettings()
	delete(settings, "include")
	delete(r.visiting, path)
	r.visited[path] = true
	r.ordered = append(r.ordered, configFile{path: path, settings: settings})
	return nil
}

func includeList(raw any) ([]string, error) {
	var items []string
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case string:
		items = []string{val}
	case []string:
		items = val
	case []any:
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("include only supports strings")
			}
			items = append(items, s)
		}
	default:
		return nil, fmt.Errorf("include must be a string array")
	}
	out := items[:0:0]
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func collectSettingsKeys(settings map[string]any, dest keySet) {
	if dest == nil {
		return
	}
	walkKeys("", settings, dest)
}

// walkKeys 标记所有叶子路径，列表视为叶子。
func walkKeys(prefix string, node any, dest keySet) {
	children, ok := node.(map[string]any)
	if !ok {
		dest.mark(prefix)
		return
	}
	for k, child := range children {
		name := strings.ToLower(strings.TrimSpace(k))
		if name == "" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		walkKeys(name, child, dest)
	}
}
