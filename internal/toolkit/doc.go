// Package toolkit wraps an agent wallet and a chain client and exposes the
// fixed set of blockchain tools the agent may call.
package toolkit
