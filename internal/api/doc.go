// Package api exposes the REST surface consumed by the Sonic University
// frontend: startup configuration, reconciled course snapshots, on-chain
// course discovery, and the transaction attempt lifecycle (submit, query,
// aggregate). It also mounts the Prometheus text exposition endpoint.
package api
