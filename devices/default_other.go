//go:build !linux

package devices

// DefaultBackend returns the static backend.
func DefaultBackend() Backend { return DefaultStatic() }
