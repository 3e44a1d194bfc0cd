package main

import (
	"fmt"
	"os"

	"github.com/evalgo/eve-build/expr"
)

// loadBuildConfiguration implements §6 "Configuration format": "-c
// file.json loads one; -D '{…}' overlays one; the composition is
// merge-on-top." Each define is applied as its own overlay layer, in
// order, so later -D flags take precedence over earlier ones.
func loadBuildConfiguration(configFile string, defines []string) (*expr.Configuration, error) {
	config := expr.EmptyConfiguration()
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("reading build configuration %q: %w", configFile, err)
		}
		overlay, err := decodeConfigOverlay(data)
		if err != nil {
			return nil, fmt.Errorf("parsing build configuration %q: %w", configFile, err)
		}
		config = config.UpdateOverlay(overlay)
	}
	for _, define := range defines {
		overlay, err := decodeConfigOverlay([]byte(define))
		if err != nil {
			return nil, fmt.Errorf("parsing -D overlay %q: %w", define, err)
		}
		config = config.UpdateOverlay(overlay)
	}
	return config, nil
}

func decodeConfigOverlay(data []byte) (map[string]expr.Value, error) {
	val, ok := expr.FromJSON(data)
	if !ok {
		return nil, fmt.Errorf("invalid JSON")
	}
	m, ok := val.(*expr.MapValue)
	if !ok {
		return nil, fmt.Errorf("configuration must be a JSON object")
	}
	overlay := make(map[string]expr.Value)
	for _, kv := range m.Map.Items() {
		overlay[kv.Key] = kv.Value
	}
	return overlay, nil
}
