// Package configs provides the embedded configuration template. The
// template is embedded at build time so `cookrag config init` works in
// every distribution, source builds included.
package configs

import _ "embed"

// ExampleConfig is the annotated starter configuration written by
// `cookrag config init`.
//
//go:embed cookrag.example.yaml
var ExampleConfig []byte
