// internal/telemetry/weathercodes.go
package telemetry

import (
	"sort"
	"strings"
)

// UnknownWeatherCode is sent when the condition text cannot be resolved.
const UnknownWeatherCode = 999

// weatherCodes maps condition descriptions to the icon codes the
// device firmware renders. Keys are lowercase.
var weatherCodes = map[string]int{
	"sunny":                   100,
	"clear":                   100,
	"cloudy":                  101,
	"few clouds":              102,
	"partly cloudy":           103,
	"overcast":                104,
	"shower rain":             300,
	"heavy shower rain":       301,
	"thundershower":           302,
	"thundershower with hail": 304,
	"light rain":              305,
	"moderate rain":           306,
	"heavy rain":              307,
	"extreme rain":            308,
	"drizzle":                 309,
	"storm":                   310,
	"freezing rain":           313,
	"light snow":              400,
	"moderate snow":           401,
	"heavy snow":              402,
	"snowstorm":               403,
	"sleet":                   404,
	"rain and snow":           405,
	"shower snow":             407,
	"mist":                    500,
	"fog":                     501,
	"haze":                    502,
	"sand":                    503,
	"dust":                    504,
	"duststorm":               507,
	"sandstorm":               508,
	"hot":                     900,
	"cold":                    901,
}

// longest-first so "heavy shower rain" wins over "shower rain".
var weatherKeysByLength = func() []string {
	keys := make([]string, 0, len(weatherCodes))
	for k := range weatherCodes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// WeatherCode resolves a condition description to its device icon
// code: exact lowercase match first, then the longest table entry
// contained in the description. Unresolvable text maps to
// UnknownWeatherCode.
func WeatherCode(description string) int {
	desc := strings.ToLower(strings.TrimSpace(description))
	if desc == "" {
		return UnknownWeatherCode
	}

	if code, ok := weatherCodes[desc]; ok {
		return code
	}

	for _, key := range weatherKeysByLength {
		if strings.Contains(desc, key) {
			return weatherCodes[key]
		}
	}

	return UnknownWeatherCode
}
