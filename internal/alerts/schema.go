package alerts

import "github.com/invopop/jsonschema"

// Schema returns a JSON Schema describing the Alert wire shape, so a SIEM
// integrator consuming this engine's alert feed can validate it without
// reading the Go source.
func Schema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	return reflector.Reflect(&Alert{})
}
