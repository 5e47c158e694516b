package faultline

import (
	"fmt"
	"hash/crc32"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MetricUnit is the unit of a metric value.
type MetricUnit struct {
	unit string
}

func (m MetricUnit) toString() string {
	if m.unit == "" {
		return "none"
	}
	return m.unit
}

func NanoSecond() MetricUnit  { return MetricUnit{"nanosecond"} }
func MicroSecond() MetricUnit { return MetricUnit{"microsecond"} }
func MilliSecond() MetricUnit { return MetricUnit{"millisecond"} }
func Second() MetricUnit      { return MetricUnit{"second"} }
func Minute() MetricUnit      { return MetricUnit{"minute"} }
func Hour() MetricUnit        { return MetricUnit{"hour"} }
func Byte() MetricUnit        { return MetricUnit{"byte"} }
func KiloByte() MetricUnit    { return MetricUnit{"kilobyte"} }
func MegaByte() MetricUnit    { return MetricUnit{"megabyte"} }
func GigaByte() MetricUnit    { return MetricUnit{"gigabyte"} }
func Ratio() MetricUnit       { return MetricUnit{"ratio"} }
func Percent() MetricUnit     { return MetricUnit{"percent"} }

// CustomUnit returns a user-defined unit. The name is sanitized to the
// characters the wire format allows.
func CustomUnit(unit string) MetricUnit {
	return MetricUnit{unitRegex.ReplaceAllString(unit, "")}
}

var (
	unitRegex     = regexp.MustCompile(`[^a-z]+`)
	keyRegex      = regexp.MustCompile(`[^a-zA-Z0-9_/.-]+`)
	tagValueRegex = regexp.MustCompile(`[^\w\d\s_:/@.{}\[\]$-]+`)
)

const (
	metricTypeCounter      = "c"
	metricTypeDistribution = "d"
	metricTypeSet          = "s"
)

// Metric is a single metric data point.
type Metric struct {
	// Timestamp of the data point in Unix seconds.
	Timestamp int64 `json:"timestamp"`
	// Width of the aggregation window in seconds. The hub helpers emit
	// unaggregated data points, whose width is always zero.
	Width int64 `json:"width"`
	// Name is the full metric resource identifier, for example
	// "c:custom/endpoint.hits@none".
	Name string `json:"name"`
	// Type is the metric type: "c", "d" or "s".
	Type string `json:"type"`
	// Value of the data point. Set members are folded to a hash.
	Value float64 `json:"value"`
	// Tags attached to the data point.
	Tags map[string]string `json:"tags,omitempty"`
}

// encodeStatsd encodes the metric in the statsd-derived line format of the
// metric envelope item.
func (m Metric) encodeStatsd() string {
	var b strings.Builder
	b.WriteString(m.Name)
	b.WriteByte(':')
	b.WriteString(strconv.FormatFloat(m.Value, 'f', -1, 64))
	b.WriteByte('|')
	b.WriteString(m.Type)
	if len(m.Tags) > 0 {
		keys := make([]string, 0, len(m.Tags))
		for k := range m.Tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("|#")
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(keyRegex.ReplaceAllString(k, "_"))
			b.WriteByte(':')
			b.WriteString(tagValueRegex.ReplaceAllString(m.Tags[k], ""))
		}
	}
	fmt.Fprintf(&b, "|T%d", m.Timestamp)
	return b.String()
}

func metricResourceName(metricType, name string, unit MetricUnit) string {
	return fmt.Sprintf("%s:custom/%s@%s", metricType, keyRegex.ReplaceAllString(name, "_"), unit.toString())
}

// MetricsIncr increments a counter metric by value.
func (hub *Hub) MetricsIncr(name string, value float64, unit MetricUnit, tags map[string]string) {
	hub.captureMetric(Metric{
		Timestamp: time.Now().Unix(),
		Width:     0,
		Name:      metricResourceName(metricTypeCounter, name, unit),
		Type:      metricTypeCounter,
		Value:     value,
		Tags:      tags,
	})
}

// MetricsDistribution adds value to a distribution metric.
func (hub *Hub) MetricsDistribution(name string, value float64, unit MetricUnit, tags map[string]string) {
	hub.captureMetric(Metric{
		Timestamp: time.Now().Unix(),
		Width:     0,
		Name:      metricResourceName(metricTypeDistribution, name, unit),
		Type:      metricTypeDistribution,
		Value:     value,
		Tags:      tags,
	})
}

// MetricsSet adds value to a set metric, which counts distinct members. The
// member is folded to a stable hash before transmission.
func (hub *Hub) MetricsSet(name string, value string, unit MetricUnit, tags map[string]string) {
	hub.captureMetric(Metric{
		Timestamp: time.Now().Unix(),
		Width:     0,
		Name:      metricResourceName(metricTypeSet, name, unit),
		Type:      metricTypeSet,
		Value:     float64(crc32.ChecksumIEEE([]byte(value))),
		Tags:      tags,
	})
}

func (hub *Hub) captureMetric(metric Metric) {
	hub.CaptureEvent(&Event{
		Type:    metricType,
		Metrics: []Metric{metric},
	})
}
