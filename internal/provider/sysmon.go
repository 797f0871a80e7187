// internal/provider/sysmon.go
package provider

import (
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	gopsnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/sensors"
	"go.uber.org/zap"
)

// SystemMonitor implements HardwareMonitor on top of host counters.
// Network throughput is derived from the delta between successive
// polls; the first poll reports zero.
type SystemMonitor struct {
	logger *zap.Logger

	mu          sync.Mutex
	lastNetAt   time.Time
	lastBytesUp uint64
	lastBytesDn uint64
}

// NewSystemMonitor creates a host hardware monitor.
func NewSystemMonitor(logger *zap.Logger) *SystemMonitor {
	return &SystemMonitor{
		logger: logger.With(zap.String("component", "sysmon")),
	}
}

// CPU returns utilization since the previous call plus the package
// temperature when the platform exposes a CPU thermal sensor.
func (m *SystemMonitor) CPU() CPUReading {
	var reading CPUReading

	percents, err := cpu.Percent(0, false)
	if err != nil {
		m.logger.Debug("CPU utilization unavailable", zap.Error(err))
	} else if len(percents) > 0 {
		reading.Usage = percents[0]
	}

	temps, err := sensors.SensorsTemperatures()
	if err == nil {
		for _, t := range temps {
			key := strings.ToLower(t.SensorKey)
			if strings.Contains(key, "coretemp") || strings.Contains(key, "k10temp") ||
				strings.Contains(key, "cpu") || strings.Contains(key, "package") {
				reading.Temp = t.Temperature
				break
			}
		}
	}

	return reading
}

// Memory returns the used-percent of physical memory.
func (m *SystemMonitor) Memory() MemoryReading {
	vm, err := mem.VirtualMemory()
	if err != nil {
		m.logger.Debug("Memory stats unavailable", zap.Error(err))
		return MemoryReading{}
	}
	return MemoryReading{Percent: vm.UsedPercent}
}

// GPU reports zeros: the host counters exposed here do not include
// GPU adapters. Kept on the interface so a vendor-specific monitor
// can slot in.
func (m *SystemMonitor) GPU(index int) GPUReading {
	return GPUReading{}
}

// Network returns aggregate up/down throughput in bytes per second,
// computed from the counter delta since the previous call.
func (m *SystemMonitor) Network() NetworkReading {
	counters, err := gopsnet.IOCounters(false)
	if err != nil || len(counters) == 0 {
		if err != nil {
			m.logger.Debug("Network counters unavailable", zap.Error(err))
		}
		return NetworkReading{}
	}

	now := time.Now()
	sent := counters[0].BytesSent
	recv := counters[0].BytesRecv

	m.mu.Lock()
	defer m.mu.Unlock()

	var reading NetworkReading
	if !m.lastNetAt.IsZero() {
		elapsed := now.Sub(m.lastNetAt).Seconds()
		if elapsed > 0 && sent >= m.lastBytesUp && recv >= m.lastBytesDn {
			reading.UpBytesPerSec = float64(sent-m.lastBytesUp) / elapsed
			reading.DownBytesPerSec = float64(recv-m.lastBytesDn) / elapsed
		}
	}

	m.lastNetAt = now
	m.lastBytesUp = sent
	m.lastBytesDn = recv
	return reading
}
