package faultline

import (
	"encoding/json"
	"time"
)

// CheckInStatus is the lifecycle status of a monitor check-in.
type CheckInStatus string

const (
	CheckInStatusInProgress CheckInStatus = "in_progress"
	CheckInStatusOK         CheckInStatus = "ok"
	CheckInStatusError      CheckInStatus = "error"
)

type checkInScheduleType string

const (
	checkInScheduleTypeCrontab  checkInScheduleType = "crontab"
	checkInScheduleTypeInterval checkInScheduleType = "interval"
)

// MonitorSchedule describes when a monitor is expected to check in.
type MonitorSchedule interface {
	// scheduleType is unexported so that only the schedules defined in this
	// package satisfy the interface.
	scheduleType() checkInScheduleType
}

type crontabSchedule struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (c crontabSchedule) scheduleType() checkInScheduleType {
	return checkInScheduleTypeCrontab
}

// CrontabSchedule defines the monitor schedule with a crontab expression, for
// example "8 * * * *".
func CrontabSchedule(scheduleString string) MonitorSchedule {
	return crontabSchedule{
		Type:  string(checkInScheduleTypeCrontab),
		Value: scheduleString,
	}
}

type intervalSchedule struct {
	Type  string `json:"type"`
	Value int64  `json:"value"`
	Unit  string `json:"unit"`
}

func (i intervalSchedule) scheduleType() checkInScheduleType {
	return checkInScheduleTypeInterval
}

// MonitorScheduleUnit is the unit of an interval monitor schedule.
type MonitorScheduleUnit string

const (
	MonitorScheduleUnitMinute MonitorScheduleUnit = "minute"
	MonitorScheduleUnitHour   MonitorScheduleUnit = "hour"
	MonitorScheduleUnitDay    MonitorScheduleUnit = "day"
	MonitorScheduleUnitWeek   MonitorScheduleUnit = "week"
	MonitorScheduleUnitMonth  MonitorScheduleUnit = "month"
	MonitorScheduleUnitYear   MonitorScheduleUnit = "year"
)

// IntervalSchedule defines the monitor schedule as an interval, for example
// every 2 hours.
func IntervalSchedule(value int64, unit MonitorScheduleUnit) MonitorSchedule {
	return intervalSchedule{
		Type:  string(checkInScheduleTypeInterval),
		Value: value,
		Unit:  string(unit),
	}
}

// MonitorConfig configures the monitor a check-in belongs to. It only needs
// to be sent once per monitor; the collector upserts the configuration.
type MonitorConfig struct {
	Schedule MonitorSchedule `json:"schedule,omitempty"`
	// CheckInMargin is the margin in minutes the check-in may be late before
	// the monitor is considered missed.
	CheckInMargin int64 `json:"checkin_margin,omitempty"`
	// MaxRuntime is the maximum runtime in minutes before a check-in is
	// considered failed.
	MaxRuntime int64 `json:"max_runtime,omitempty"`
	// Timezone the monitor schedule is evaluated in, for example
	// "America/Los_Angeles".
	Timezone string `json:"timezone,omitempty"`
}

// CheckIn is a single monitor check-in.
type CheckIn struct {
	// ID of the check-in. Reuse the ID of an earlier in-progress check-in to
	// close it out.
	ID EventID `json:"check_in_id"`
	// MonitorSlug identifies the monitor.
	MonitorSlug string `json:"monitor_slug"`
	// Status of the check-in.
	Status CheckInStatus `json:"status"`
	// Duration of the job run, when known.
	Duration time.Duration `json:"duration,omitempty"`
}

func (c *CheckIn) MarshalJSON() ([]byte, error) {
	// checkIn aliases CheckIn to allow calling json.Marshal without an
	// infinite loop. The wire format wants the duration in seconds.
	type checkIn CheckIn
	return json.Marshal(struct {
		*checkIn
		Duration float64 `json:"duration,omitempty"`
	}{
		checkIn:  (*checkIn)(c),
		Duration: c.Duration.Seconds(),
	})
}

// serializedCheckIn is the payload of a check-in envelope item: the check-in
// itself with the monitor configuration and environment inlined. It is a flat
// struct on purpose: embedding CheckIn would promote its MarshalJSON and
// swallow the extra fields.
type serializedCheckIn struct {
	CheckInID     EventID        `json:"check_in_id"`
	MonitorSlug   string         `json:"monitor_slug"`
	Status        CheckInStatus  `json:"status"`
	Duration      float64        `json:"duration,omitempty"`
	Release       string         `json:"release,omitempty"`
	Environment   string         `json:"environment,omitempty"`
	MonitorConfig *MonitorConfig `json:"monitor_config,omitempty"`
}

func (e *Event) checkInMarshalJSON() ([]byte, error) {
	serialized := serializedCheckIn{
		Release:       e.Release,
		Environment:   e.Environment,
		MonitorConfig: e.MonitorConfig,
	}
	if e.CheckIn != nil {
		serialized.CheckInID = e.CheckIn.ID
		serialized.MonitorSlug = e.CheckIn.MonitorSlug
		serialized.Status = e.CheckIn.Status
		serialized.Duration = e.CheckIn.Duration.Seconds()
	}
	return json.Marshal(serialized)
}

// EventFromCheckIn creates an event from the given check-in.
func (client *Client) EventFromCheckIn(checkIn *CheckIn, monitorConfig *MonitorConfig) *Event {
	if checkIn == nil {
		return nil
	}

	checkInID := checkIn.ID
	if checkInID == "" {
		checkInID = newEventID()
	}

	return &Event{
		Type:        checkInType,
		Release:     client.options.Release,
		Environment: client.options.Environment,
		CheckIn: &CheckIn{
			ID:          checkInID,
			MonitorSlug: checkIn.MonitorSlug,
			Status:      checkIn.Status,
			Duration:    checkIn.Duration,
		},
		MonitorConfig: monitorConfig,
	}
}
