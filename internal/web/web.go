// Package web embeds the control surface served at /.
package web

import _ "embed"

//go:embed index.html
var IndexHTML []byte
