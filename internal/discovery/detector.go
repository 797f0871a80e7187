// internal/discovery/detector.go
package discovery

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"superkey-service/internal/config"
	"superkey-service/internal/firmware"
	"superkey-service/internal/transport"
)

const (
	probeCommand      = "sys_get version\n"
	probeResponseWait = 500 * time.Millisecond
	probeReadTimeout  = 100 * time.Millisecond
)

// Candidate represents a port that may host the device.
type Candidate struct {
	Port         string  `json:"port"`
	Product      string  `json:"product,omitempty"`
	SerialNumber string  `json:"serial_number,omitempty"`
	IsUSB        bool    `json:"is_usb"`
	Confidence   float64 `json:"confidence"` // 0.0-1.0
	Version      string  `json:"version,omitempty"`
}

// Detector locates the device by probing candidate serial ports with
// a version query.
type Detector struct {
	logger    *zap.Logger
	cfg       *config.SerialConfig
	listPorts func() ([]transport.PortInfo, error)
	probe     func(port string, baud int) (string, error)
}

// NewDetector creates a detector using the configured baud rate for
// probes.
func NewDetector(cfg *config.SerialConfig, logger *zap.Logger) *Detector {
	return &Detector{
		logger:    logger.With(zap.String("component", "discovery")),
		cfg:       cfg,
		listPorts: transport.AvailablePorts,
		probe:     probePort,
	}
}

// Detect probes every candidate port and returns them ordered as
// enumerated. Ports already held open elsewhere fail their probe and
// keep a low confidence. The skip argument names a port to leave
// untouched, typically the active link.
func (d *Detector) Detect(ctx context.Context, skip string) ([]Candidate, error) {
	ports, err := d.listPorts()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}

	var candidates []Candidate
	for _, p := range ports {
		select {
		case <-ctx.Done():
			return candidates, ctx.Err()
		default:
		}

		if p.Name == skip {
			continue
		}

		c := Candidate{
			Port:         p.Name,
			Product:      p.Product,
			SerialNumber: p.SerialNumber,
			IsUSB:        p.IsUSB,
		}
		if p.IsUSB {
			c.Confidence = 0.3
		}

		response, err := d.probe(p.Name, d.cfg.BaudRate)
		if err != nil {
			d.logger.Debug("Port probe failed",
				zap.String("port", p.Name),
				zap.Error(err),
			)
			candidates = append(candidates, c)
			continue
		}

		if version, ok := firmware.ParseVersion(response); ok {
			c.Confidence = 1.0
			c.Version = version.String()
		} else if p.IsUSB {
			// Port opened and answered nothing recognizable
			c.Confidence = 0.5
		}
		candidates = append(candidates, c)
	}

	d.logger.Info("Device detection completed",
		zap.Int("ports_scanned", len(ports)),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// probePort opens the port, sends the version query and collects
// whatever the device answers within the response window.
func probePort(port string, baud int) (string, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(port, mode)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", port, err)
	}
	defer p.Close()

	if err := p.SetReadTimeout(probeReadTimeout); err != nil {
		return "", fmt.Errorf("set read timeout: %w", err)
	}
	p.ResetInputBuffer()

	if _, err := p.Write([]byte(probeCommand)); err != nil {
		return "", fmt.Errorf("write probe: %w", err)
	}

	deadline := time.Now().Add(probeResponseWait)
	buf := make([]byte, 1024)
	var response []byte
	for time.Now().Before(deadline) {
		n, err := p.Read(buf)
		if err != nil {
			break
		}
		if n > 0 {
			response = append(response, buf[:n]...)
		}
	}
	return string(response), nil
}
