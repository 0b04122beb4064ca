package main

import "os"

// applyProfile sets RALPH_PROFILE for the remainder of the process so a
// subsequent config.Load() picks up the named [profiles.<name>] overlay.
// A blank name is a no-op, leaving any already-set environment in place.
func applyProfile(name string) {
	if name == "" {
		return
	}
	os.Setenv("RALPH_PROFILE", name)
}
