// Package llm contains the provider-neutral chat types used by the agent
// executor. Provider adapters live in sub-packages and translate these types
// to vendor SDK requests, including tool-calling metadata.
package llm
