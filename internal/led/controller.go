// internal/led/controller.go
package led

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"superkey-service/internal/transport"
)

// Effect is an LED animation mode.
type Effect string

const (
	EffectStatic    Effect = "static"
	EffectBreathing Effect = "breathing"
	EffectFlowing   Effect = "flowing"
	EffectBlink     Effect = "blink"
	EffectRainbow   Effect = "rainbow"
	EffectOff       Effect = "off"
)

// Effects lists the supported animation modes.
var Effects = []Effect{
	EffectStatic, EffectBreathing, EffectFlowing,
	EffectBlink, EffectRainbow, EffectOff,
}

// ParseEffect validates an effect name.
func ParseEffect(s string) (Effect, error) {
	for _, e := range Effects {
		if string(e) == strings.ToLower(s) {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown LED effect %q", s)
}

// ColorPreset is a named device-side color.
type ColorPreset struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// ColorPresets lists the colors the device firmware knows by name.
var ColorPresets = []ColorPreset{
	{Name: "red", Color: "FF0000"},
	{Name: "orange", Color: "FF8000"},
	{Name: "yellow", Color: "FFFF00"},
	{Name: "green", Color: "00FF00"},
	{Name: "cyan", Color: "00FFFF"},
	{Name: "blue", Color: "0000FF"},
	{Name: "purple", Color: "8000FF"},
	{Name: "magenta", Color: "FF00FF"},
	{Name: "pink", Color: "FF80C0"},
	{Name: "white", Color: "FFFFFF"},
}

// Sender is the transport surface the controller needs.
type Sender interface {
	Send(data string, format transport.DataFormat) error
}

// Controller sends LED commands over the serial link and remembers
// the last requested state. The link is fire-and-forget; the device
// never acknowledges.
type Controller struct {
	logger *zap.Logger
	link   Sender

	mu         sync.Mutex
	brightness int
	color      string
	effect     Effect
	periodMs   int
}

// State is a snapshot of the last requested LED settings.
type State struct {
	Brightness int    `json:"brightness"`
	Color      string `json:"color"`
	Effect     Effect `json:"effect"`
	PeriodMs   int    `json:"period_ms"`
}

// NewController creates an LED controller bound to the transport.
func NewController(link Sender, logger *zap.Logger) *Controller {
	return &Controller{
		logger:     logger.With(zap.String("component", "led")),
		link:       link,
		brightness: 128,
		color:      "FF0000",
		effect:     EffectStatic,
		periodMs:   2000,
	}
}

func (c *Controller) send(key string, value interface{}) error {
	cmd := fmt.Sprintf("sys_set %s %v\n", key, value)
	if err := c.link.Send(cmd, transport.FormatASCII); err != nil {
		c.logger.Debug("LED command not delivered", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("send %s: %w", key, err)
	}
	return nil
}

// SetBrightness sets the global brightness, clamped to 0-255.
func (c *Controller) SetBrightness(brightness int) error {
	brightness = clamp(brightness, 0, 255)

	c.mu.Lock()
	c.brightness = brightness
	c.mu.Unlock()

	return c.send("led_brightness", brightness)
}

// SetColor sets the strip color from an RRGGBB hex string. A leading
// '#' is accepted and stripped.
func (c *Controller) SetColor(color string) error {
	color = strings.ToUpper(strings.TrimPrefix(color, "#"))
	if !validColor(color) {
		return fmt.Errorf("invalid color %q, want RRGGBB", color)
	}

	c.mu.Lock()
	c.color = color
	c.mu.Unlock()

	return c.send("led_color", color)
}

// SetColorRGB sets the strip color from components, clamped to 0-255.
func (c *Controller) SetColorRGB(r, g, b int) error {
	return c.SetColor(fmt.Sprintf("%02X%02X%02X",
		clamp(r, 0, 255), clamp(g, 0, 255), clamp(b, 0, 255)))
}

// SetPreset selects a named device-side color preset.
func (c *Controller) SetPreset(name string) error {
	name = strings.ToLower(name)
	for _, p := range ColorPresets {
		if p.Name == name {
			c.mu.Lock()
			c.color = p.Color
			c.mu.Unlock()
			return c.send("led_preset", name)
		}
	}
	return fmt.Errorf("unknown color preset %q", name)
}

// SetEffect switches the animation mode.
func (c *Controller) SetEffect(effect Effect) error {
	c.mu.Lock()
	c.effect = effect
	c.mu.Unlock()

	return c.send("led_effect", string(effect))
}

// SetEffectParams switches the animation mode with explicit color,
// period and brightness. Zero-valued parameters fall back to the last
// requested state.
func (c *Controller) SetEffectParams(effect Effect, color string, periodMs, brightness int) error {
	c.mu.Lock()
	if color == "" {
		color = c.color
	} else {
		color = strings.ToUpper(strings.TrimPrefix(color, "#"))
	}
	if periodMs <= 0 {
		periodMs = c.periodMs
	}
	if brightness < 0 {
		brightness = c.brightness
	}
	c.effect = effect
	c.periodMs = periodMs
	c.mu.Unlock()

	if !validColor(color) {
		return fmt.Errorf("invalid color %q, want RRGGBB", color)
	}

	value := fmt.Sprintf("%s,%s,%d,%d", effect, color, periodMs, clamp(brightness, 0, 255))
	return c.send("led_effect_ex", value)
}

// SetSingle colors one LED by index.
func (c *Controller) SetSingle(index int, color string) error {
	color = strings.ToUpper(strings.TrimPrefix(color, "#"))
	if !validColor(color) {
		return fmt.Errorf("invalid color %q, want RRGGBB", color)
	}
	if index < 0 {
		return fmt.Errorf("invalid LED index %d", index)
	}

	return c.send("led_single", fmt.Sprintf("%d,%s", index, color))
}

// Stop halts all effects.
func (c *Controller) Stop() error {
	c.mu.Lock()
	c.effect = EffectOff
	c.mu.Unlock()

	return c.send("led_stop", "1")
}

// State returns the last requested settings.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Brightness: c.brightness,
		Color:      c.color,
		Effect:     c.effect,
		PeriodMs:   c.periodMs,
	}
}

func validColor(color string) bool {
	if len(color) != 6 {
		return false
	}
	for _, r := range color {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
