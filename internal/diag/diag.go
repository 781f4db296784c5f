// Package diag configures and exposes the driver's diagnostic log, built on
// the standard log package the way the teacher board examples configure it
// (log.SetFlags(0), log.SetOutput(os.Stdout) under a verbose switch) rather
// than a bespoke logging abstraction.
//
// Nothing in the dmx/rdm task or ISR code logs directly from interrupt
// context: ISRs record state into fixed-size fields that task-level code
// later formats and logs, keeping the interrupt path allocation-free.
package diag

import (
	"io"
	"log"
	"os"
)

func init() {
	log.SetFlags(0)
	log.SetOutput(os.Stdout)
}

// Verbose toggles whether Printf reaches the console at all: on (the state
// init leaves it in, tests included) it writes to os.Stdout, off it routes
// to io.Discard.
func Verbose(on bool) {
	if on {
		log.SetOutput(os.Stdout)
	} else {
		log.SetOutput(io.Discard)
	}
}

// Printf logs a single diagnostic line, prefixed with tag so that the
// driver, the RDM transaction engine and the responder registry can be told
// apart in a shared console.
func Printf(tag string, format string, args ...interface{}) {
	log.Printf(tag+": "+format, args...)
}
