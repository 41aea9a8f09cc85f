package memprobe

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// linuxProvider reads /proc/meminfo, preferring MemAvailable and falling
// back to MemFree+Buffers+Cached when the kernel doesn't report it.
type linuxProvider struct{}

func (p *linuxProvider) Available() (available, total uint64, err error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0, fmt.Errorf("open /proc/meminfo: %w", err)
	}
	defer f.Close()

	fields := map[string]uint64{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		valFields := strings.Fields(parts[1])
		if len(valFields) == 0 {
			continue
		}
		n, convErr := strconv.ParseUint(valFields[0], 10, 64)
		if convErr != nil {
			continue
		}
		// /proc/meminfo reports kB.
		fields[key] = n * 1024
	}

	total = fields["MemTotal"]

	if v, ok := fields["MemAvailable"]; ok {
		return v, total, nil
	}

	return fields["MemFree"] + fields["Buffers"] + fields["Cached"], total, nil
}
