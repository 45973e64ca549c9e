package silo

import (
	"log"

	"github.com/TheBitDrifter/bark"
)

// abort panics with err traced via bark, mirroring the teacher's
// panic(bark.AddTrace(err)) idiom at entity.go and query.go. Every
// process-fatal path in this module (§7: invariant violations, chunk
// overflow) funnels through here, as do the internal bad-argument and
// unregistered-type checks that have no error return.
func abort(err error) {
	panic(bark.AddTrace(err))
}

// warnf logs a non-fatal, operator-visible warning. Used by command-buffer
// playback when it skips malformed input (§7: "logs and skips") rather than
// aborting the world.
func warnf(format string, args ...any) {
	log.Printf("silo: "+format, args...)
}
