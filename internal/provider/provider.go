// internal/provider/provider.go
package provider

// CPUReading holds CPU utilization and temperature.
type CPUReading struct {
	Usage float64 `json:"usage"`
	Temp  float64 `json:"temp"`
}

// MemoryReading holds memory utilization.
type MemoryReading struct {
	Percent float64 `json:"percent"`
}

// GPUReading holds GPU utilization and temperature for one adapter.
type GPUReading struct {
	Util float64 `json:"util"`
	Temp float64 `json:"temp"`
}

// NetworkReading holds aggregate network throughput in bytes per second.
type NetworkReading struct {
	UpBytesPerSec   float64 `json:"up"`
	DownBytesPerSec float64 `json:"down"`
}

// HardwareMonitor supplies host performance readings. Implementations
// return zero values for readings they cannot produce; they never fail.
type HardwareMonitor interface {
	CPU() CPUReading
	Memory() MemoryReading
	GPU(index int) GPUReading
	Network() NetworkReading
}

// ForecastDay is one day of the weather forecast.
type ForecastDay struct {
	Text      string `json:"text"`
	TempMax   int    `json:"temp_max"`
	TempMin   int    `json:"temp_min"`
	WindDir   string `json:"wind_dir"`
	WindScale string `json:"wind_scale"`
}

// WeatherSnapshot is the result of one weather poll. OK is false when
// the upstream service could not produce a reading; consumers must
// skip the snapshot rather than send zeros.
type WeatherSnapshot struct {
	OK          bool          `json:"ok"`
	City        string        `json:"city"`
	Temperature float64       `json:"temperature"`
	Description string        `json:"description"`
	Humidity    int           `json:"humidity"`
	Pressure    int           `json:"pressure"`
	Forecast    []ForecastDay `json:"forecast,omitempty"`
}

// WeatherProvider supplies weather snapshots.
type WeatherProvider interface {
	Weather() WeatherSnapshot
}

// StockSnapshot is the result of one stock/index poll.
type StockSnapshot struct {
	OK     bool    `json:"ok"`
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Change float64 `json:"change"`
}

// StockProvider supplies stock/index snapshots.
type StockProvider interface {
	Stock() StockSnapshot
}
