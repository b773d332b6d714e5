package metrics

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"

	"github.com/rs/zerolog/log"
)

// PollHost samples host CPU, memory, and load averages every interval
// and writes them into m's host gauges, until ctx is canceled.
func (m *Metrics) PollHost(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampleHost()
		}
	}
}

func (m *Metrics) sampleHost() {
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		m.HostCPUPercent.Set(pcts[0])
	} else if err != nil {
		log.Debug().Err(err).Msg("metrics: cpu sample failed")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		m.HostMemUsedBytes.Set(float64(vm.Used))
	} else {
		log.Debug().Err(err).Msg("metrics: mem sample failed")
	}

	if avg, err := load.Avg(); err == nil {
		m.HostLoad1.Set(avg.Load1)
	} else {
		log.Debug().Err(err).Msg("metrics: load sample failed")
	}
}
