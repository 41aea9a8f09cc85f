// Package memprobe reports system available memory for the scheduler's
// memory guard (spec §5): the reclaimable total, not merely "free".
package memprobe

import "runtime"

// Provider reports available and total system memory in bytes.
type Provider interface {
	Available() (available, total uint64, err error)
}

// New returns the Provider appropriate for the running OS.
func New() Provider {
	switch runtime.GOOS {
	case "darwin":
		return &darwinProvider{}
	case "linux":
		return &linuxProvider{}
	default:
		return &gopsutilProvider{}
	}
}

// AvailablePct reports available memory as a percentage of total.
func AvailablePct(p Provider) (float64, error) {
	available, total, err := p.Available()
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	return 100 * float64(available) / float64(total), nil
}
