// Package metrics exposes the Prometheus collectors of the agentd process:
// HTTP request metrics, SSE stream events and agent run outcomes.
package metrics
