package profile_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wbrown/janus-diffdl/internal/profile"
)

func TestConsoleFormatterRendersKnownEventNames(t *testing.T) {
	f := profile.NewConsoleFormatter(nil)

	line := f.Format(profile.Event{
		Name:    profile.TimelyFlushComplete,
		Latency: 250 * time.Microsecond,
		Data:    map[string]any{"to": 3},
	})
	assert.Contains(t, line, "flush to epoch")
	assert.Contains(t, line, "250µs")
}

func TestConsoleFormatterFallsBackForUnknownEventNames(t *testing.T) {
	f := profile.NewConsoleFormatter(nil)
	line := f.Format(profile.Event{Name: "custom/event", Data: map[string]any{"x": 1}})
	assert.True(t, strings.Contains(line, "custom/event"))
}
