// internal/led/controller_test.go
package led

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"superkey-service/internal/transport"
)

type fakeSender struct {
	mu       sync.Mutex
	err      error
	commands []string
}

func (f *fakeSender) Send(data string, _ transport.DataFormat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.commands = append(f.commands, data)
	return nil
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) == 0 {
		return ""
	}
	return f.commands[len(f.commands)-1]
}

func newTestController() (*Controller, *fakeSender) {
	sender := &fakeSender{}
	return NewController(sender, zap.NewNop()), sender
}

func TestSetBrightnessClamps(t *testing.T) {
	c, sender := newTestController()

	require.NoError(t, c.SetBrightness(300))
	assert.Equal(t, "sys_set led_brightness 255\n", sender.last())
	assert.Equal(t, 255, c.State().Brightness)

	require.NoError(t, c.SetBrightness(-5))
	assert.Equal(t, "sys_set led_brightness 0\n", sender.last())
}

func TestSetColor(t *testing.T) {
	c, sender := newTestController()

	require.NoError(t, c.SetColor("#ff8000"))
	assert.Equal(t, "sys_set led_color FF8000\n", sender.last())
	assert.Equal(t, "FF8000", c.State().Color)

	assert.Error(t, c.SetColor("red"))
	assert.Error(t, c.SetColor("12345"))
}

func TestSetColorRGB(t *testing.T) {
	c, sender := newTestController()

	require.NoError(t, c.SetColorRGB(255, 128, 0))
	assert.Equal(t, "sys_set led_color FF8000\n", sender.last())

	require.NoError(t, c.SetColorRGB(-1, 300, 64))
	assert.Equal(t, "sys_set led_color 00FF40\n", sender.last())
}

func TestSetPreset(t *testing.T) {
	c, sender := newTestController()

	require.NoError(t, c.SetPreset("Cyan"))
	assert.Equal(t, "sys_set led_preset cyan\n", sender.last())
	assert.Equal(t, "00FFFF", c.State().Color)

	assert.Error(t, c.SetPreset("ultraviolet"))
}

func TestSetEffectParams(t *testing.T) {
	c, sender := newTestController()

	require.NoError(t, c.SetEffectParams(EffectBreathing, "00FF00", 1500, 200))
	assert.Equal(t, "sys_set led_effect_ex breathing,00FF00,1500,200\n", sender.last())

	// zero-valued params fall back to remembered state
	require.NoError(t, c.SetEffectParams(EffectBlink, "", 0, -1))
	assert.Equal(t, "sys_set led_effect_ex blink,FF0000,1500,128\n", sender.last())
}

func TestSetSingle(t *testing.T) {
	c, sender := newTestController()

	require.NoError(t, c.SetSingle(3, "#00ff00"))
	assert.Equal(t, "sys_set led_single 3,00FF00\n", sender.last())

	assert.Error(t, c.SetSingle(-1, "00FF00"))
	assert.Error(t, c.SetSingle(0, "bogus"))
}

func TestStop(t *testing.T) {
	c, sender := newTestController()

	require.NoError(t, c.Stop())
	assert.Equal(t, "sys_set led_stop 1\n", sender.last())
	assert.Equal(t, EffectOff, c.State().Effect)
}

func TestSendFailureSurfaces(t *testing.T) {
	c, sender := newTestController()
	sender.err = transport.ErrNotConnected

	err := c.SetBrightness(100)
	assert.ErrorIs(t, err, transport.ErrNotConnected)
}

func TestParseEffect(t *testing.T) {
	e, err := ParseEffect("Rainbow")
	require.NoError(t, err)
	assert.Equal(t, EffectRainbow, e)

	_, err = ParseEffect("disco")
	assert.Error(t, err)
}
