// Package stratadb contains the ambient stack shared by every subsystem of the
// region migration control plane: the error envelope, retry/backoff helpers,
// jittered sleep helpers, default logging setup, a bounded worker pool, and the
// cluster identifiers (RegionID, Peer) used throughout the metadata service.
package stratadb
