//go:build !linux

package internal

import (
	"os"
	"time"
)

// fileCreationTime is only implemented on Linux; elsewhere the modification
// time alone drives the filesystem fallback.
func fileCreationTime(_ string, _ os.FileInfo) (time.Time, bool) {
	return time.Time{}, false
}
