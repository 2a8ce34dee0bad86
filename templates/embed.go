// Package templates embeds the default configuration and the sample
// ChangeSpec written by axe init.
package templates

import "embed"

//go:embed config.yaml changespec.yaml
var FS embed.FS
