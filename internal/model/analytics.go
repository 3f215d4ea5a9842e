package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

type Granularity string

const (
	GranularityByResource  Granularity = "by_resource"
	GranularityByDayOfWeek Granularity = "by_day_of_week"
	GranularityByHourOfDay Granularity = "by_hour_of_day"
)

func (g Granularity) Valid() bool {
	switch g {
	case GranularityByResource, GranularityByDayOfWeek, GranularityByHourOfDay:
		return true
	}
	return false
}

// UtilizationBucket is one aggregation unit of the capacity report.
// UtilizationRate is clamped to [0,100] for display; RawRatio keeps the
// unclamped bookedSlots/totalSlots ratio for overbooking detection.
type UtilizationBucket struct {
	Granularity Granularity  `json:"granularity"`
	ResourceID  *uuid.UUID   `json:"resource_id,omitempty"`
	DayOfWeek   *time.Weekday `json:"day_of_week,omitempty"`
	HourOfDay   *int         `json:"hour_of_day,omitempty"`

	TotalSlots      int     `json:"total_slots"`
	BookedSlots     int     `json:"booked_slots"`
	UtilizationRate float64 `json:"utilization_rate"`
	RawRatio        float64 `json:"raw_ratio"`
}

// Key identifies the bucket for alerting and recommendations.
func (b *UtilizationBucket) Key() string {
	switch b.Granularity {
	case GranularityByResource:
		if b.ResourceID != nil {
			return "resource:" + b.ResourceID.String()
		}
	case GranularityByDayOfWeek:
		if b.DayOfWeek != nil {
			return "day:" + b.DayOfWeek.String()
		}
	case GranularityByHourOfDay:
		if b.HourOfDay != nil {
			return "hour:" + strconv.Itoa(*b.HourOfDay)
		}
	}
	return "unknown"
}

type OverbookingSeverity string

const (
	SeverityLow    OverbookingSeverity = "low"
	SeverityMedium OverbookingSeverity = "medium"
	SeverityHigh   OverbookingSeverity = "high"
)

// OverbookingAlert is raised for a bucket whose booked slots exceed capacity.
type OverbookingAlert struct {
	BucketKey string              `json:"bucket_key"`
	Excess    int                 `json:"excess"`
	Severity  OverbookingSeverity `json:"severity"`
}

// Recommendation is a deterministic capacity advisory derived from the
// aggregate; identical input aggregates always yield identical output.
type Recommendation struct {
	BucketKey string `json:"bucket_key"`
	Message   string `json:"message"`
}

type UtilizationReport struct {
	Buckets         []UtilizationBucket `json:"buckets"`
	Alerts          []OverbookingAlert  `json:"alerts,omitempty"`
	Recommendations []Recommendation    `json:"recommendations,omitempty"`
}
