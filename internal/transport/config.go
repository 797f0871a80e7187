// internal/transport/config.go
package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// baudRates is the fixed whitelist of supported link speeds.
var baudRates = []int{
	38400, 57600, 115200, 128000, 230400, 256000,
	460800, 500000, 576000, 921600, 1000000, 1152000,
	1500000, 2000000,
}

// BaudRates returns the supported baud rate whitelist.
func BaudRates() []int {
	rates := make([]int, len(baudRates))
	copy(rates, baudRates)
	return rates
}

// IsSupportedBaud reports whether rate is on the whitelist.
func IsSupportedBaud(rate int) bool {
	for _, r := range baudRates {
		if r == rate {
			return true
		}
	}
	return false
}

// ConnectionConfig holds the serial link parameters. Mutated only while
// disconnected, except RTS/DTR which may be toggled on a live link.
type ConnectionConfig struct {
	Port         string        `json:"port"`
	BaudRate     int           `json:"baud_rate"`
	DataBits     int           `json:"data_bits"`
	StopBits     float64       `json:"stop_bits"`
	Parity       string        `json:"parity"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	RTS          bool          `json:"rts"`
	DTR          bool          `json:"dtr"`
}

// ConfigUpdate carries a partial configuration; nil fields are left unchanged.
type ConfigUpdate struct {
	Port         *string        `json:"port,omitempty"`
	BaudRate     *int           `json:"baud_rate,omitempty"`
	DataBits     *int           `json:"data_bits,omitempty"`
	StopBits     *float64       `json:"stop_bits,omitempty"`
	Parity       *string        `json:"parity,omitempty"`
	ReadTimeout  *time.Duration `json:"read_timeout,omitempty"`
	WriteTimeout *time.Duration `json:"write_timeout,omitempty"`
	RTS          *bool          `json:"rts,omitempty"`
	DTR          *bool          `json:"dtr,omitempty"`
}

// merge applies non-nil fields of u onto c, validating each one.
func (c *ConnectionConfig) merge(u ConfigUpdate) error {
	if u.Port != nil {
		c.Port = *u.Port
	}
	if u.BaudRate != nil {
		if !IsSupportedBaud(*u.BaudRate) {
			return fmt.Errorf("unsupported baud rate %d", *u.BaudRate)
		}
		c.BaudRate = *u.BaudRate
	}
	if u.DataBits != nil {
		if *u.DataBits < 5 || *u.DataBits > 8 {
			return fmt.Errorf("data bits must be between 5 and 8, got %d", *u.DataBits)
		}
		c.DataBits = *u.DataBits
	}
	if u.StopBits != nil {
		switch *u.StopBits {
		case 1, 1.5, 2:
			c.StopBits = *u.StopBits
		default:
			return fmt.Errorf("stop bits must be 1, 1.5 or 2, got %v", *u.StopBits)
		}
	}
	if u.Parity != nil {
		if _, err := parityFromString(*u.Parity); err != nil {
			return err
		}
		c.Parity = *u.Parity
	}
	if u.ReadTimeout != nil {
		c.ReadTimeout = *u.ReadTimeout
	}
	if u.WriteTimeout != nil {
		c.WriteTimeout = *u.WriteTimeout
	}
	if u.RTS != nil {
		c.RTS = *u.RTS
	}
	if u.DTR != nil {
		c.DTR = *u.DTR
	}
	return nil
}

// mode converts the configuration into a serial.Mode. RTS and DTR are
// kept low until after the port is open.
func (c ConnectionConfig) mode() (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		InitialStatusBits: &serial.ModemOutputBits{
			RTS: false,
			DTR: false,
		},
	}

	switch c.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 1.5:
		mode.StopBits = serial.OnePointFiveStopBits
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits: %v", c.StopBits)
	}

	parity, err := parityFromString(c.Parity)
	if err != nil {
		return nil, err
	}
	mode.Parity = parity

	return mode, nil
}

func parityFromString(s string) (serial.Parity, error) {
	switch s {
	case "", "none":
		return serial.NoParity, nil
	case "even":
		return serial.EvenParity, nil
	case "odd":
		return serial.OddParity, nil
	case "mark":
		return serial.MarkParity, nil
	case "space":
		return serial.SpaceParity, nil
	default:
		return serial.NoParity, fmt.Errorf("invalid parity %q", s)
	}
}
