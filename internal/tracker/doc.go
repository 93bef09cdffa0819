// Package tracker turns a stream of timestamped observations into a
// predictive density for the tracked value `horizon` time units ahead.
//
// Responsibilities: pairing each observation with the one recorded a
// horizon earlier (via the quarantine delay line), feeding the realized
// changes to fading variance estimators, and expressing the current belief
// as a density.Mixture.
// Key types: Tracker (the contract every variant honours), Base (shared
// quarantine and counter state), MixtureTracker.
//
// A tracker is owned by exactly one consumption loop. It performs no
// locking and no I/O; callers that share a tracker across goroutines must
// serialise access themselves.
package tracker
