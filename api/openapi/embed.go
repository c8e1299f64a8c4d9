// Package openapi embeds the HTTP API description served at /api/openapi.yaml.
package openapi

import _ "embed"

// Spec is the OpenAPI 3 document for the public and admin API.
//
//go:embed openapi.yaml
var Spec []byte
