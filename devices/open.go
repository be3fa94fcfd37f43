package devices

import "fmt"

// Open returns the backend registered under name: "auto", "alsa" or "static".
// A static backend lists static, or the default device when static is empty.
func Open(name string, static AudioDevices) (Backend, error) {
	switch name {
	case "", "auto":
		if len(static) > 0 {
			return NewStatic(static...), nil
		}
		return DefaultBackend(), nil
	case "alsa":
		return &ALSA{Path: DefaultPCMPath}, nil
	case "static":
		if len(static) == 0 {
			return DefaultStatic(), nil
		}
		return NewStatic(static...), nil
	}
	return nil, fmt.Errorf("unknown device backend %q", name)
}
