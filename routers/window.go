package routers

import (
	"fmt"
	"time"

	"github.com/modelmux/modelmux/pkg/provider"
	"github.com/modelmux/modelmux/pkg/router"
)

// Bucket key layouts. Each is lexicographically unambiguous: two timestamps
// in the same UTC minute (hour, day) format to the same string, timestamps
// in different minutes to different strings.
const (
	minuteKeyLayout = "2006-01-02-15-04"
	hourKeyLayout   = "2006-01-02-15"
	dayKeyLayout    = "2006-01-02"
)

// Windows holds the three bucket identifiers for one instant.
type Windows struct {
	Minute string
	Hour   string
	Day    string
}

// usageWindows maps a timestamp to its minute/hour/day bucket identifiers.
// Pure and side-effect free; always computed in UTC.
func usageWindows(t time.Time) Windows {
	utc := t.UTC()
	return Windows{
		Minute: utc.Format(minuteKeyLayout),
		Hour:   utc.Format(hourKeyLayout),
		Day:    utc.Format(dayKeyLayout),
	}
}

// Bucket returns the identifier for one window granularity.
func (w Windows) Bucket(window router.Window) string {
	switch window {
	case router.WindowMinute:
		return w.Minute
	case router.WindowHour:
		return w.Hour
	default:
		return w.Day
	}
}

// counterKey builds the ledger key for one (deployment, metric, window)
// counter. The braces make the deployment identity a Redis hash tag so all
// of a deployment's counters land on the same cluster node.
func counterKey(d *provider.Deployment, metric router.Metric, window router.Window, bucket string) string {
	return fmt.Sprintf("{%s:%s}:%s:%s:%s", d.ID, d.ModelName, metric, window, bucket)
}

// deploymentKeys returns the six counter keys for a deployment in a fixed
// order: requests then tokens, each minute/hour/day.
func deploymentKeys(d *provider.Deployment, w Windows) []string {
	keys := make([]string, 0, 6)
	for _, metric := range []router.Metric{router.MetricRequests, router.MetricTokens} {
		for _, window := range router.Windows {
			keys = append(keys, counterKey(d, metric, window, w.Bucket(window)))
		}
	}
	return keys
}
