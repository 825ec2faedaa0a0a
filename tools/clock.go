package tools

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/boat-builder/agentruntime"
)

type ClockArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone such as Europe/London (default UTC)"`
}

// Clock reports the current time in a timezone.
type Clock struct {
	toolName    string
	description string
	now         func() time.Time
}

func NewClock() *Clock {
	return &Clock{
		toolName:    "get_current_time",
		description: "Get the current date and time",
		now:         time.Now,
	}
}

func (c *Clock) Name() string {
	return c.toolName
}

func (c *Clock) Description() string {
	return c.description
}

func (c *Clock) Parameters() map[string]any {
	return agentruntime.GenerateSchema[ClockArgs]()
}

func (c *Clock) Execute(ctx context.Context, args map[string]any) (string, error) {
	in, err := agentruntime.DecodeArgs[ClockArgs](args)
	if err != nil {
		return "", agentruntime.NewRetryableError(err)
	}
	tz := in.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", agentruntime.NewRetryableError(fmt.Errorf("unknown timezone %q", tz))
	}
	return fmt.Sprintf("Current time (%s): %s", tz, c.now().In(loc).Format("2006-01-02 15:04:05")), nil
}
