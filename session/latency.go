package session

// LatencyClass is a coarse latency preference that maps to buffer sizes.
type LatencyClass string

const (
	LatencyLow    LatencyClass = "low"    // prioritize minimal latency (smaller buffers)
	LatencyMedium LatencyClass = "medium" // balanced default
	LatencyHigh   LatencyClass = "high"   // prioritize stability (larger buffers)
)

// ParseLatencyClass accepts "low", "medium" and "high". The empty string is medium.
func ParseLatencyClass(s string) (LatencyClass, bool) {
	switch LatencyClass(s) {
	case LatencyLow, LatencyMedium, LatencyHigh:
		return LatencyClass(s), true
	case "":
		return LatencyMedium, true
	}
	return "", false
}

// MapLatencyToBuffer maps a LatencyClass to a suggested buffer size in frames.
func MapLatencyToBuffer(c LatencyClass) int {
	switch c {
	case LatencyLow:
		return 256
	case LatencyHigh:
		return 1024
	case LatencyMedium:
		fallthrough
	default:
		return 512
	}
}
