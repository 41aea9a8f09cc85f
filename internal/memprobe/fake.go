package memprobe

// Fake is a deterministic Provider for tests, letting the scheduler's
// memory-guard property be exercised without touching the real OS.
type Fake struct {
	AvailableBytes uint64
	TotalBytes     uint64
	Err            error
}

func (f *Fake) Available() (available, total uint64, err error) {
	if f.Err != nil {
		return 0, 0, f.Err
	}
	return f.AvailableBytes, f.TotalBytes, nil
}
