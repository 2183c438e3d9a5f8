// Package redis builds the shared go-redis client used by the keyed wallet
// store and the event publisher.
package redis
