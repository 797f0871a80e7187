// internal/telemetry/scheduler_test.go
package telemetry

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"superkey-service/internal/config"
	"superkey-service/internal/provider"
	"superkey-service/internal/transport"
)

type fakeSender struct {
	mu        sync.Mutex
	connected bool
	commands  []string
}

func (f *fakeSender) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSender) Send(data string, _ transport.DataFormat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, data)
	return nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.commands))
	copy(out, f.commands)
	return out
}

type fakeHardware struct{}

func (fakeHardware) CPU() provider.CPUReading       { return provider.CPUReading{Usage: 42.5, Temp: 61} }
func (fakeHardware) Memory() provider.MemoryReading { return provider.MemoryReading{Percent: 73.1} }
func (fakeHardware) GPU(int) provider.GPUReading    { return provider.GPUReading{Util: 10, Temp: 55} }
func (fakeHardware) Network() provider.NetworkReading {
	return provider.NetworkReading{UpBytesPerSec: 1048576, DownBytesPerSec: 2097152}
}

type fakeWeather struct{ snap provider.WeatherSnapshot }

func (f fakeWeather) Weather() provider.WeatherSnapshot { return f.snap }

type fakeStock struct{ snap provider.StockSnapshot }

func (f fakeStock) Stock() provider.StockSnapshot { return f.snap }

func testTelemetryConfig() *config.TelemetryConfig {
	return &config.TelemetryConfig{
		TimeEnabled:         true,
		APIEnabled:          true,
		PerformanceEnabled:  true,
		TimeInterval:        time.Second,
		APIInterval:         30 * time.Second,
		PerformanceInterval: 5 * time.Second,
		APIInitialDelay:     5 * time.Second,
		CommandSpacing:      5 * time.Millisecond,
	}
}

func TestIntervalFloors(t *testing.T) {
	cfg := testTelemetryConfig()
	cfg.TimeInterval = time.Millisecond
	cfg.APIInterval = time.Millisecond
	cfg.PerformanceInterval = time.Millisecond
	cfg.CommandSpacing = 0

	s := NewScheduler(cfg, &fakeSender{}, nil, nil, nil, zap.NewNop())

	assert.Equal(t, 100*time.Millisecond, s.Interval(CategoryTime))
	assert.Equal(t, time.Second, s.Interval(CategoryAPI))
	assert.Equal(t, 500*time.Millisecond, s.Interval(CategoryPerformance))

	s.SetInterval(CategoryTime, 10*time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, s.Interval(CategoryTime))

	s.SetInterval(CategoryTime, 2*time.Second)
	assert.Equal(t, 2*time.Second, s.Interval(CategoryTime))
}

func TestTimeReadingFields(t *testing.T) {
	at := time.Date(2026, 8, 30, 14, 5, 9, 0, time.UTC)
	r := timeReading(at)

	require.Len(t, r, 3)
	assert.Equal(t, "time", r[0].Key)
	assert.Equal(t, "14:05:09", r[0].Value)
	assert.Equal(t, "date", r[1].Key)
	assert.Equal(t, "2026-08-30", r[1].Value)
	assert.Equal(t, "weekday", r[2].Key)
	assert.Equal(t, "Sunday", r[2].Value)
}

func TestAPIReadingSkipsFailedProviders(t *testing.T) {
	r := apiReading(
		fakeWeather{snap: provider.WeatherSnapshot{OK: false}},
		fakeStock{snap: provider.StockSnapshot{OK: false}},
	)
	assert.Empty(t, r)

	r = apiReading(nil, nil)
	assert.Empty(t, r)
}

func TestAPIReadingMergesWeatherAndStock(t *testing.T) {
	weather := fakeWeather{snap: provider.WeatherSnapshot{
		OK:          true,
		City:        "hangzhou",
		Temperature: 23.6,
		Description: "Partly Cloudy",
		Humidity:    63,
		Pressure:    1012,
	}}
	stock := fakeStock{snap: provider.StockSnapshot{
		OK: true, Name: "SSE", Price: 3105.22, Change: -0.34,
	}}

	r := apiReading(weather, stock)
	require.Len(t, r, 8)

	assert.Equal(t, Field{Key: "temp", Value: 24}, r[0])
	assert.Equal(t, Field{Key: "weather_code", Value: 103}, r[1])
	assert.Equal(t, Field{Key: "humidity", Value: 63}, r[2])
	assert.Equal(t, Field{Key: "pressure", Value: 1012}, r[3])
	assert.Equal(t, Field{Key: "city_code", Value: 0}, r[4])
	assert.Equal(t, Field{Key: "stock_name", Value: "SSE"}, r[5])
	assert.Equal(t, Field{Key: "stock_price", Value: 3105.22}, r[6])
	assert.Equal(t, Field{Key: "stock_change", Value: -0.34}, r[7])
}

func TestAPIReadingForecastRequiresThreeDays(t *testing.T) {
	snap := provider.WeatherSnapshot{
		OK: true, City: "beijing", Description: "sunny",
		Forecast: []provider.ForecastDay{{Text: "sunny"}, {Text: "rain"}},
	}
	r := apiReading(fakeWeather{snap: snap}, nil)
	for _, f := range r {
		assert.NotContains(t, f.Key, "forecast", f.Key)
	}

	snap.Forecast = append(snap.Forecast, provider.ForecastDay{Text: "snow"})
	r = apiReading(fakeWeather{snap: snap}, nil)

	var keys []string
	for _, f := range r {
		keys = append(keys, f.Key)
	}
	assert.Contains(t, keys, "forecast_day0_text")
	assert.Contains(t, keys, "forecast_day2_wind_scale")
}

func TestPerformanceReading(t *testing.T) {
	r := performanceReading(fakeHardware{}, 0)
	require.Len(t, r, 7)

	byKey := map[string]interface{}{}
	for _, f := range r {
		byKey[f.Key] = f.Value
	}
	assert.Equal(t, 42.5, byKey["cpu"])
	assert.Equal(t, 73.1, byKey["mem"])
	assert.Equal(t, 1.0, byKey["net_up"])
	assert.Equal(t, 2.0, byKey["net_down"])

	assert.Nil(t, performanceReading(nil, 0))
}

func TestSchedulerPushesTimeBatch(t *testing.T) {
	cfg := testTelemetryConfig()
	cfg.APIEnabled = false
	cfg.PerformanceEnabled = false
	cfg.CommandSpacing = time.Millisecond

	sender := &fakeSender{connected: true}
	s := NewScheduler(cfg, sender, nil, nil, nil, zap.NewNop())

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return len(sender.sent()) >= 3
	}, 2*time.Second, 10*time.Millisecond)

	first := sender.sent()[:3]
	assert.True(t, strings.HasPrefix(first[0], "sys_set time "))
	assert.True(t, strings.HasPrefix(first[1], "sys_set date "))
	assert.True(t, strings.HasPrefix(first[2], "sys_set weekday "))
	for _, cmd := range first {
		assert.True(t, strings.HasSuffix(cmd, "\n"))
	}

	assert.GreaterOrEqual(t, s.Status().CommandsSent, uint64(3))
}

func TestSchedulerSkipsWhenDisconnected(t *testing.T) {
	cfg := testTelemetryConfig()
	cfg.APIEnabled = false
	cfg.PerformanceEnabled = false

	sender := &fakeSender{connected: false}
	s := NewScheduler(cfg, sender, nil, nil, nil, zap.NewNop())

	s.Start()
	time.Sleep(150 * time.Millisecond)
	s.Stop()

	assert.Empty(t, sender.sent())
}

func TestSchedulerRuntimeEnable(t *testing.T) {
	cfg := testTelemetryConfig()
	cfg.TimeEnabled = false
	cfg.APIEnabled = false
	cfg.PerformanceEnabled = false
	cfg.CommandSpacing = time.Millisecond

	sender := &fakeSender{connected: true}
	s := NewScheduler(cfg, sender, nil, nil, nil, zap.NewNop())

	s.Start()
	defer s.Stop()

	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, sender.sent())

	s.SetCategoryEnabled(CategoryTime, true)
	require.Eventually(t, func() bool {
		return len(sender.sent()) >= 3
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSchedulerStopJoins(t *testing.T) {
	cfg := testTelemetryConfig()
	sender := &fakeSender{connected: true}
	s := NewScheduler(cfg, sender, fakeHardware{}, nil, nil, zap.NewNop())

	s.Start()
	assert.True(t, s.Running())

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop in time")
	}
	assert.False(t, s.Running())
	assert.Equal(t, 0, s.Status().ActiveWorkers)
}

// stuckWeather blocks inside the provider call until released,
// simulating a wedged upstream API.
type stuckWeather struct{ release chan struct{} }

func (w stuckWeather) Weather() provider.WeatherSnapshot {
	<-w.release
	return provider.WeatherSnapshot{}
}

func TestSchedulerStopAbandonsStuckWorker(t *testing.T) {
	cfg := testTelemetryConfig()
	cfg.APIInitialDelay = 10 * time.Millisecond

	sender := &fakeSender{connected: true}
	weather := stuckWeather{release: make(chan struct{})}
	t.Cleanup(func() { close(weather.release) })

	s := NewScheduler(cfg, sender, fakeHardware{}, weather, nil, zap.NewNop())
	s.Start()

	// Give the api worker time to get stuck inside the provider.
	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(workerJoinWait + time.Second):
		t.Fatal("stop did not give up on the stuck worker")
	}
	assert.False(t, s.Running())
}
