// Package util provides shared logging, statistics and identification helpers.
package util

import (
	"hash/fnv"
	"net"
)

// SessionTag hashes a session's local and remote addresses into its log
// Tag. It need not be reversible or unique across restarts.
func SessionTag(local, remote net.Addr) Tag {
	h := fnv.New32a()
	if local != nil {
		h.Write([]byte(local.String()))
	}
	if remote != nil {
		h.Write([]byte(remote.String()))
	}
	return Tag(h.Sum32())
}
