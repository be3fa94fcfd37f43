//go:build linux

package devices

import "os"

// DefaultBackend returns the ALSA backend when the kernel exposes a PCM table
// and the static backend otherwise.
func DefaultBackend() Backend {
	if _, err := os.Stat(DefaultPCMPath); err == nil {
		return &ALSA{Path: DefaultPCMPath}
	}
	return DefaultStatic()
}
