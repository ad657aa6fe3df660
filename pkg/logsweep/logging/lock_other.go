//go:build !unix

package logging

import "os"

// Advisory locking is only wired on Unix; elsewhere writes rely on
// the in-process mutex alone.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) {}
