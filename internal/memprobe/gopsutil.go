package memprobe

import (
	"github.com/shirou/gopsutil/v3/mem"
)

// gopsutilProvider is used on OSes without a bespoke shell-out/procfs path.
type gopsutilProvider struct{}

func (p *gopsutilProvider) Available() (available, total uint64, err error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	return vm.Available, vm.Total, nil
}
