package provision

import (
	"fmt"

	"github.com/melih/blitzkrieg/internal/core/domain"
	"github.com/melih/blitzkrieg/internal/core/ports"
)

// DefaultScanLimit is how many consecutive ports FindAvailablePort tries.
const DefaultScanLimit = 100

// PortAllocator picks unused local TCP ports. The returned port is a hint:
// nothing is reserved, so a concurrent allocator may pick the same value and
// the subsequent bind can still fail.
type PortAllocator struct {
	probe ports.PortProbe
	limit int
}

func NewPortAllocator(probe ports.PortProbe, limit int) *PortAllocator {
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	return &PortAllocator{probe: probe, limit: limit}
}

// FindAvailablePort probes preferred, preferred+1, ... and returns the first
// port nothing is listening on.
func (a *PortAllocator) FindAvailablePort(preferred int) (int, error) {
	if preferred <= 0 || preferred > 65535 {
		return 0, domain.NewError("allocate port", "", domain.ErrPortRangeExhausted,
			fmt.Errorf("invalid starting port %d", preferred))
	}
	last := preferred + a.limit - 1
	if last > 65535 {
		last = 65535
	}
	for port := preferred; port <= last; port++ {
		if !a.probe.InUse(port) {
			return port, nil
		}
	}
	return 0, domain.NewError("allocate port", "", domain.ErrPortRangeExhausted,
		fmt.Errorf("no free port in %d-%d", preferred, last))
}
