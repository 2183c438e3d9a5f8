// Package web3 houses blockchain connectivity utilities used by the agent
// toolkit: the chain client abstraction, wallet key handling, ether unit
// conversion and multi-chain configuration helpers.
package web3
