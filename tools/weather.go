package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/boat-builder/agentruntime"
)

var weatherData = map[string]string{
	"New York": "Sunny, 15°C, good air quality",
	"London":   "Cloudy, 12°C, 60% humidity",
	"Paris":    "Light rain, 18°C, bring an umbrella",
	"Tokyo":    "Sunny, 20°C, pleasant weather",
}

type WeatherArgs struct {
	City string `json:"city" jsonschema:"description=City name"`
}

// Weather reports simulated weather for a city.
type Weather struct {
	toolName    string
	description string
}

func NewWeather() *Weather {
	return &Weather{
		toolName:    "get_weather",
		description: "Get weather for a specified city",
	}
}

func (w *Weather) Name() string {
	return w.toolName
}

func (w *Weather) Description() string {
	return w.description
}

func (w *Weather) Parameters() map[string]any {
	return agentruntime.GenerateSchema[WeatherArgs]()
}

func (w *Weather) Execute(ctx context.Context, args map[string]any) (string, error) {
	in, err := agentruntime.DecodeArgs[WeatherArgs](args)
	if err != nil {
		return "", agentruntime.NewRetryableError(err)
	}
	city := strings.TrimSpace(in.City)
	if city == "" {
		return "", agentruntime.NewRetryableError(fmt.Errorf("city is required"))
	}
	if report, ok := weatherData[city]; ok {
		return report, nil
	}
	return fmt.Sprintf("%s: Sunny, 23°C", city), nil
}
