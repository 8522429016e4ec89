// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Kept verbatim from gnunet-go's util/id.go: a process-local counter,
// used by util.Map to tag re-entrant lock-free calls.

package util

var (
	_id = 0
)

// generate next unique identifier (unique in the running process/application)
func NextID() int {
	_id++
	return _id
}
