package rdm

// branchWatchdogInterval is how many DISC_UNIQUE_BRANCH probes DiscoverAll
// issues between watchdog services: a full 48-bit binary search can run
// long enough on a large rig to starve a board's watchdog if nothing
// services it between probes.
const branchWatchdogInterval = 64

// serviceWatchdog is called periodically during DiscoverAll. It defaults
// to a no-op; a board wires in its watchdog with SetWatchdogService at
// init so a long discovery scan does not trigger a reset.
var serviceWatchdog = func() {}

// SetWatchdogService installs the function DiscoverAll calls every
// branchWatchdogInterval probes. wdog.WDOG.Service takes a timeout, so a
// board passes a closure around it (see board/nxp/mx6ullevk).
func SetWatchdogService(fn func()) {
	if fn == nil {
		fn = func() {}
	}

	serviceWatchdog = fn
}
