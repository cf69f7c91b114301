// Package web3 houses the on-chain wiring for the learn-to-earn platform:
// the static registry mapping chain ids to contract deployments, the ABIs of
// the course completion tracker and the reward token, and the chain
// definition file loader. Wallet sessions and contract handles build on top
// of it in the wallet and gateway subpackages.
package web3
