// Package builtin wires the bundled provider adapters into a factory.
package builtin

import (
	"github.com/upb/agency-llm-client/services/providers"
	"github.com/upb/agency-llm-client/services/providers/chatgpt"
	"github.com/upb/agency-llm-client/services/providers/claude"
	"github.com/upb/agency-llm-client/services/providers/grok"
)

// NewFactory returns a factory with claude, chatgpt and grok registered
func NewFactory() *providers.Factory {
	return providers.NewFactory().
		Register(claude.Kind, claude.New).
		Register(chatgpt.Kind, chatgpt.New).
		Register(grok.Kind, grok.New)
}
