package grove

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// ValuesFromYAML decodes a YAML mapping into [Value] providers, one per
// top-level key, using the key string as the token. Providers are returned
// in key order.
//
//	smtp_host: mail.internal
//	retries: 3
//	features:
//	  beta: true
func ValuesFromYAML(data []byte) ([]Provider, error) {
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decoding values: %w", err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	providers := make([]Provider, 0, len(keys))
	for _, k := range keys {
		providers = append(providers, Value(k, values[k]))
	}
	return providers, nil
}
