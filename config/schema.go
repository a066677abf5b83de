package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// AgencySchema returns the JSON Schema describing the agency document.
func AgencySchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(&AgencyConfig{})
	s.Title = "Agency configuration"
	s.Description = "Providers, agents and usage limits for the agency LLM client"
	return s
}

// AgencySchemaJSON renders AgencySchema as indented JSON.
func AgencySchemaJSON() ([]byte, error) {
	return json.MarshalIndent(AgencySchema(), "", "  ")
}
