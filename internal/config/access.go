package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetPath resolves a dotted key path such as "sender.executor.core_size"
// against the config's YAML form. Numeric segments index into lists, so
// "botapi.proxy.non_proxy_hosts.0" selects the first host. Sections come
// back as map[string]any.
func (c *Config) GetPath(path string) (any, error) {
	keys := splitPath(path)
	if len(keys) == 0 {
		return nil, fmt.Errorf("path is empty")
	}

	raw, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	node := tree
	for i, key := range keys {
		switch n := node.(type) {
		case map[string]any:
			v, ok := n[key]
			if !ok {
				return nil, fmt.Errorf("%s: key %q not found", strings.Join(keys[:i], "."), key)
			}
			node = v
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(n) {
				return nil, fmt.Errorf("%s: index %q out of range (len %d)", strings.Join(keys[:i], "."), key, len(n))
			}
			node = n[idx]
		default:
			return nil, fmt.Errorf("%s: not a map, cannot select %q", strings.Join(keys[:i], "."), key)
		}
	}
	return node, nil
}

func splitPath(path string) []string {
	var keys []string
	for _, k := range strings.Split(strings.TrimSpace(path), ".") {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
