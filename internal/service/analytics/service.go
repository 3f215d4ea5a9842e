package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/jwalitptl/pharmacare-api/internal/config"
	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/internal/repository"
	"github.com/jwalitptl/pharmacare-api/internal/service/directory"
	"github.com/jwalitptl/pharmacare-api/pkg/errors"
	"github.com/jwalitptl/pharmacare-api/pkg/metrics"
)

// bookedStatuses are the statuses that consume capacity. Cancelled, no-show
// and rescheduled appointments release their slots.
var bookedStatuses = map[model.AppointmentStatus]bool{
	model.AppointmentStatusScheduled:  true,
	model.AppointmentStatusConfirmed:  true,
	model.AppointmentStatusInProgress: true,
	model.AppointmentStatusCompleted:  true,
}

// Service computes capacity utilization and overbooking reports. Aggregation
// is a pure function of its inputs; reports are cached briefly because the
// dashboard polls them.
type Service struct {
	repo      repository.AppointmentRepository
	directory *directory.Service
	cfg       config.AnalyticsConfig
	step      int
	cache     *gocache.Cache
	metrics   *metrics.Metrics
}

func NewService(
	repo repository.AppointmentRepository,
	dir *directory.Service,
	cfg config.AnalyticsConfig,
	slotStepMinutes int,
	m *metrics.Metrics,
) *Service {
	if slotStepMinutes <= 0 {
		slotStepMinutes = 30
	}
	return &Service{
		repo:      repo,
		directory: dir,
		cfg:       cfg,
		step:      slotStepMinutes,
		cache:     gocache.New(cfg.CacheTTL(), 2*cfg.CacheTTL()),
		metrics:   m,
	}
}

func (s *Service) GetUtilization(ctx context.Context, rng model.DateRange, resourceID *uuid.UUID, granularity model.Granularity) (*model.UtilizationReport, error) {
	if !granularity.Valid() {
		return nil, errors.NewValidation(fmt.Sprintf("unknown granularity: %s", granularity))
	}
	if !rng.From.Before(rng.To) {
		return nil, errors.NewValidation("report range start must precede end")
	}

	key := cacheKey(rng, resourceID, granularity)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*model.UtilizationReport), nil
	}

	appointments, err := s.repo.ListForAnalytics(ctx, rng, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load appointments for analytics: %w", err)
	}
	resources, err := s.directory.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load resources for analytics: %w", err)
	}
	if resourceID != nil {
		filtered := resources[:0]
		for _, r := range resources {
			if r.ID == *resourceID {
				filtered = append(filtered, r)
			}
		}
		resources = filtered
	}

	buckets := s.Aggregate(appointments, resources, rng, granularity)
	report := &model.UtilizationReport{
		Buckets:         buckets,
		Alerts:          s.DetectOverbooking(buckets, granularity),
		Recommendations: s.Recommend(buckets),
	}

	s.cache.Set(key, report, gocache.DefaultExpiration)
	if s.metrics != nil {
		s.metrics.UtilizationAggregations.WithLabelValues(string(granularity)).Inc()
	}
	return report, nil
}

// Aggregate buckets capacity and bookings over the range. Capacity comes from
// each resource's working hours divided into slot-step units; a booking
// contributes ceil(overlap/step) slots to every bucket it touches, so
// overlapping bookings can push a bucket past its capacity.
func (s *Service) Aggregate(appointments []*model.Appointment, resources []*model.Resource, rng model.DateRange, granularity model.Granularity) []model.UtilizationBucket {
	acc := newAccumulator(granularity)

	for _, resource := range resources {
		loc := resourceLocation(resource)
		for day := rng.From.In(loc); day.Before(rng.To.In(loc)); day = day.AddDate(0, 0, 1) {
			window, ok := resource.HoursFor(day.Weekday())
			if !ok {
				continue
			}
			midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
			winStart := midnight.Add(time.Duration(window.StartMinute) * time.Minute)
			winEnd := midnight.Add(time.Duration(window.EndMinute) * time.Minute)
			s.addCapacity(acc, granularity, resource, winStart, winEnd, loc)
		}
	}

	resourceLoc := make(map[uuid.UUID]*time.Location, len(resources))
	for _, r := range resources {
		resourceLoc[r.ID] = resourceLocation(r)
	}
	for _, apt := range appointments {
		if !bookedStatuses[apt.Status] {
			continue
		}
		loc, ok := resourceLoc[apt.AssignedTo]
		if !ok {
			loc = time.UTC
		}
		s.addBooking(acc, granularity, apt, rng, loc)
	}

	return acc.buckets()
}

// DetectOverbooking flags buckets whose bookings exceed capacity. Hourly
// buckets use tighter thresholds than daily and per-resource ones; a severity
// is assigned only when the excess is strictly above its threshold.
func (s *Service) DetectOverbooking(buckets []model.UtilizationBucket, granularity model.Granularity) []model.OverbookingAlert {
	medium, high := s.cfg.DailyExcessMedium, s.cfg.DailyExcessHigh
	if granularity == model.GranularityByHourOfDay {
		medium, high = s.cfg.HourlyExcessMedium, s.cfg.HourlyExcessHigh
	}

	var alerts []model.OverbookingAlert
	for i := range buckets {
		b := &buckets[i]
		excess := b.BookedSlots - b.TotalSlots
		if excess <= 0 {
			continue
		}
		severity := model.SeverityLow
		switch {
		case excess > high:
			severity = model.SeverityHigh
		case excess > medium:
			severity = model.SeverityMedium
		}
		alerts = append(alerts, model.OverbookingAlert{
			BucketKey: b.Key(),
			Excess:    excess,
			Severity:  severity,
		})
	}
	return alerts
}

// Recommend derives capacity advisories from the aggregate. The rules are
// deterministic so repeated reports over the same data never flap.
func (s *Service) Recommend(buckets []model.UtilizationBucket) []model.Recommendation {
	var recs []model.Recommendation
	for i := range buckets {
		b := &buckets[i]
		switch {
		case b.BookedSlots > b.TotalSlots:
			recs = append(recs, model.Recommendation{
				BucketKey: b.Key(),
				Message:   fmt.Sprintf("%s is overbooked by %d slots; move bookings or extend working hours", b.Key(), b.BookedSlots-b.TotalSlots),
			})
		case b.UtilizationRate >= s.cfg.HighUtilizationPct:
			recs = append(recs, model.Recommendation{
				BucketKey: b.Key(),
				Message:   fmt.Sprintf("%s is at %.0f%% capacity; consider adding coverage", b.Key(), b.UtilizationRate),
			})
		}
	}
	return recs
}

func (s *Service) addCapacity(acc *accumulator, granularity model.Granularity, resource *model.Resource, winStart, winEnd time.Time, loc *time.Location) {
	switch granularity {
	case model.GranularityByResource:
		acc.add(resourceKey(resource.ID), s.slots(winEnd.Sub(winStart)), 0)
	case model.GranularityByDayOfWeek:
		acc.add(weekdayKey(winStart.In(loc).Weekday()), s.slots(winEnd.Sub(winStart)), 0)
	case model.GranularityByHourOfDay:
		for hour, span := range hourSpans(winStart, winEnd, loc) {
			acc.add(hourKey(hour), s.slots(span), 0)
		}
	}
}

func (s *Service) addBooking(acc *accumulator, granularity model.Granularity, apt *model.Appointment, rng model.DateRange, loc *time.Location) {
	start, end := clip(apt.StartTime, apt.EndTime(), rng.From, rng.To)
	if !end.After(start) {
		return
	}
	switch granularity {
	case model.GranularityByResource:
		acc.add(resourceKey(apt.AssignedTo), 0, s.slots(end.Sub(start)))
	case model.GranularityByDayOfWeek:
		acc.add(weekdayKey(start.In(loc).Weekday()), 0, s.slots(end.Sub(start)))
	case model.GranularityByHourOfDay:
		for hour, span := range hourSpans(start, end, loc) {
			acc.add(hourKey(hour), 0, s.slots(span))
		}
	}
}

// slots converts a duration to slot units, rounding partial slots up.
func (s *Service) slots(d time.Duration) int {
	minutes := int(d.Minutes())
	if minutes <= 0 {
		return 0
	}
	return (minutes + s.step - 1) / s.step
}

func clip(start, end, from, to time.Time) (time.Time, time.Time) {
	if start.Before(from) {
		start = from
	}
	if end.After(to) {
		end = to
	}
	return start, end
}

// hourSpans splits [start, end) into per-hour durations in the location.
func hourSpans(start, end time.Time, loc *time.Location) map[int]time.Duration {
	spans := make(map[int]time.Duration)
	for cur := start; cur.Before(end); {
		local := cur.In(loc)
		hourEnd := local.Truncate(time.Hour).Add(time.Hour)
		if hourEnd.After(end) {
			hourEnd = end
		}
		spans[local.Hour()] += hourEnd.Sub(cur)
		cur = hourEnd
	}
	return spans
}

func resourceLocation(r *model.Resource) *time.Location {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func cacheKey(rng model.DateRange, resourceID *uuid.UUID, granularity model.Granularity) string {
	rid := "all"
	if resourceID != nil {
		rid = resourceID.String()
	}
	return fmt.Sprintf("util:%s:%s:%s:%s", granularity, rid, rng.From.UTC().Format(time.RFC3339), rng.To.UTC().Format(time.RFC3339))
}

// accumulator collects slot counts per bucket key and materializes ordered
// UtilizationBucket values.
type accumulator struct {
	granularity model.Granularity
	resources   map[uuid.UUID]*counts
	weekdays    map[time.Weekday]*counts
	hours       map[int]*counts
}

type counts struct {
	total  int
	booked int
}

type resourceKeyT struct{ id uuid.UUID }
type weekdayKeyT struct{ day time.Weekday }
type hourKeyT struct{ hour int }

func resourceKey(id uuid.UUID) interface{}    { return resourceKeyT{id} }
func weekdayKey(day time.Weekday) interface{} { return weekdayKeyT{day} }
func hourKey(hour int) interface{}            { return hourKeyT{hour} }

func newAccumulator(granularity model.Granularity) *accumulator {
	return &accumulator{
		granularity: granularity,
		resources:   make(map[uuid.UUID]*counts),
		weekdays:    make(map[time.Weekday]*counts),
		hours:       make(map[int]*counts),
	}
}

func (a *accumulator) add(key interface{}, total, booked int) {
	var c *counts
	switch k := key.(type) {
	case resourceKeyT:
		if c = a.resources[k.id]; c == nil {
			c = &counts{}
			a.resources[k.id] = c
		}
	case weekdayKeyT:
		if c = a.weekdays[k.day]; c == nil {
			c = &counts{}
			a.weekdays[k.day] = c
		}
	case hourKeyT:
		if c = a.hours[k.hour]; c == nil {
			c = &counts{}
			a.hours[k.hour] = c
		}
	default:
		return
	}
	c.total += total
	c.booked += booked
}

func (a *accumulator) buckets() []model.UtilizationBucket {
	var out []model.UtilizationBucket
	switch a.granularity {
	case model.GranularityByResource:
		ids := make([]uuid.UUID, 0, len(a.resources))
		for id := range a.resources {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		for _, id := range ids {
			id := id
			out = append(out, makeBucket(a.granularity, &id, nil, nil, a.resources[id]))
		}
	case model.GranularityByDayOfWeek:
		for day := time.Sunday; day <= time.Saturday; day++ {
			if c, ok := a.weekdays[day]; ok {
				day := day
				out = append(out, makeBucket(a.granularity, nil, &day, nil, c))
			}
		}
	case model.GranularityByHourOfDay:
		for hour := 0; hour < 24; hour++ {
			if c, ok := a.hours[hour]; ok {
				hour := hour
				out = append(out, makeBucket(a.granularity, nil, nil, &hour, c))
			}
		}
	}
	return out
}

func makeBucket(g model.Granularity, resourceID *uuid.UUID, day *time.Weekday, hour *int, c *counts) model.UtilizationBucket {
	b := model.UtilizationBucket{
		Granularity: g,
		ResourceID:  resourceID,
		DayOfWeek:   day,
		HourOfDay:   hour,
		TotalSlots:  c.total,
		BookedSlots: c.booked,
	}
	if c.total > 0 {
		b.RawRatio = float64(c.booked) / float64(c.total)
	} else if c.booked > 0 {
		b.RawRatio = 1
	}
	b.UtilizationRate = b.RawRatio * 100
	if b.UtilizationRate > 100 {
		b.UtilizationRate = 100
	}
	if b.UtilizationRate < 0 {
		b.UtilizationRate = 0
	}
	return b
}
