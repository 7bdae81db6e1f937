// Package defaults embeds the example configuration written by
// seedclaw init.
package defaults

import _ "embed"

// ConfigYAML is the example config.yaml.
//
//go:embed config.example.yaml
var ConfigYAML []byte
