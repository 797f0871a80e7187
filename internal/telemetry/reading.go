// internal/telemetry/reading.go
package telemetry

import (
	"math"
	"time"

	"superkey-service/internal/provider"
)

// timeReading builds the wall-clock batch.
func timeReading(now time.Time) Reading {
	return Reading{
		{Key: "time", Value: now.Format("15:04:05")},
		{Key: "date", Value: now.Format("2006-01-02")},
		{Key: "weekday", Value: now.Weekday().String()},
	}
}

// apiReading merges the weather and stock snapshots. Either provider
// may be absent or unsuccessful; its fields are simply omitted.
func apiReading(weather provider.WeatherProvider, stock provider.StockProvider) Reading {
	var r Reading

	if weather != nil {
		if snap := weather.Weather(); snap.OK {
			r = append(r,
				Field{Key: "temp", Value: int(math.Round(snap.Temperature))},
				Field{Key: "weather_code", Value: WeatherCode(snap.Description)},
				Field{Key: "humidity", Value: snap.Humidity},
				Field{Key: "pressure", Value: snap.Pressure},
				Field{Key: "city_code", Value: CityCode(snap.City)},
			)
			r = append(r, forecastFields(snap.Forecast)...)
		}
	}

	if stock != nil {
		if snap := stock.Stock(); snap.OK {
			r = append(r,
				Field{Key: "stock_name", Value: snap.Name},
				Field{Key: "stock_price", Value: snap.Price},
				Field{Key: "stock_change", Value: snap.Change},
			)
		}
	}

	return r
}

// forecastFields flattens a three-day forecast; shorter forecasts are
// dropped entirely so the device never sees a partial set.
func forecastFields(forecast []provider.ForecastDay) Reading {
	if len(forecast) < 3 {
		return nil
	}

	var r Reading
	for i, day := range forecast[:3] {
		prefix := "forecast_day" + string(rune('0'+i))
		r = append(r,
			Field{Key: prefix + "_text", Value: day.Text},
			Field{Key: prefix + "_temp_max", Value: day.TempMax},
			Field{Key: prefix + "_temp_min", Value: day.TempMin},
			Field{Key: prefix + "_wind_dir", Value: day.WindDir},
			Field{Key: prefix + "_wind_scale", Value: day.WindScale},
		)
	}
	return r
}

// performanceReading samples the hardware monitor. Missing readings
// come back as zeros; network throughput is converted to MB/s with
// two decimals.
func performanceReading(hw provider.HardwareMonitor, gpuIndex int) Reading {
	if hw == nil {
		return nil
	}

	cpu := hw.CPU()
	mem := hw.Memory()
	gpu := hw.GPU(gpuIndex)
	net := hw.Network()

	toMB := func(bytesPerSec float64) float64 {
		return math.Round(bytesPerSec/(1024*1024)*100) / 100
	}

	return Reading{
		{Key: "cpu", Value: cpu.Usage},
		{Key: "cpu_temp", Value: cpu.Temp},
		{Key: "mem", Value: mem.Percent},
		{Key: "gpu", Value: gpu.Util},
		{Key: "gpu_temp", Value: gpu.Temp},
		{Key: "net_up", Value: toMB(net.UpBytesPerSec)},
		{Key: "net_down", Value: toMB(net.DownBytesPerSec)},
	}
}
