// Package statestream projects streaming tool-call arguments onto shared
// state keys, so a client can render a partial recipe while the model is
// still typing it.
//
// Snapshots are advisory. They never mutate the authoritative state; the
// router applies the final, validated payload once the call completes.
package statestream
