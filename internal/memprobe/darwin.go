package memprobe

import (
	"bufio"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// darwinProvider shells out to vm_stat and parses page size plus the
// free/inactive/purgeable/speculative page counts.
type darwinProvider struct{}

func (p *darwinProvider) Available() (available, total uint64, err error) {
	out, err := exec.Command("vm_stat").Output()
	if err != nil {
		return 0, 0, fmt.Errorf("vm_stat: %w", err)
	}

	pageSize := uint64(4096)
	counts := map[string]uint64{}

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "Mach Virtual Memory Statistics") {
			if n, ok := parsePageSize(line); ok {
				pageSize = n
			}
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimRight(strings.TrimSpace(parts[1]), ".")
		n, convErr := strconv.ParseUint(val, 10, 64)
		if convErr != nil {
			continue
		}
		counts[key] = n
	}

	availablePages := counts["Pages free"] + counts["Pages inactive"] + counts["Pages purgeable"] + counts["Pages speculative"]
	totalPages := availablePages + counts["Pages active"] + counts["Pages wired down"]

	return availablePages * pageSize, totalPages * pageSize, nil
}

func parsePageSize(line string) (uint64, bool) {
	idx := strings.Index(line, "page size of")
	if idx < 0 {
		return 0, false
	}
	fields := strings.Fields(line[idx+len("page size of"):])
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
