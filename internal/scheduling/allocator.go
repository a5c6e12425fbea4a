package scheduling

import (
	"context"

	"github.com/igabaycare/platform/internal/clinic"
	"github.com/igabaycare/platform/internal/shared/metrics"
	"github.com/igabaycare/platform/internal/shared/types"
)

// SlotDurationMinutes is the fixed width of every bookable slot.
const SlotDurationMinutes = 30

// lunchHour is excluded from every clinic's schedule. This is a fixed
// platform policy, not a per-clinic setting.
const lunchHour = 12

// TimeSlot is a candidate appointment start time for one clinic and date.
// Computed fresh per request and never cached: availability is advisory
// only, the appointment ledger's uniqueness check is authoritative.
type TimeSlot struct {
	Time            types.TimeOfDay `json:"time"`
	Available       bool            `json:"available"`
	ConsultationFee float64         `json:"consultation_fee"`
}

// ClinicDirectory resolves a clinic's operating hours and fee
type ClinicDirectory interface {
	GetClinic(ctx context.Context, id types.ID) (*clinic.Clinic, error)
}

// BookingLookup returns the slot times already occupied by active
// appointments for a clinic and date
type BookingLookup interface {
	BookedTimes(ctx context.Context, clinicID types.ID, date types.Date) ([]types.TimeOfDay, error)
}

// Allocator computes bookable time slots from clinic schedules and
// existing bookings
type Allocator struct {
	clinics  ClinicDirectory
	bookings BookingLookup
}

// NewAllocator creates a new slot allocator
func NewAllocator(clinics ClinicDirectory, bookings BookingLookup) *Allocator {
	return &Allocator{clinics: clinics, bookings: bookings}
}

// GetAvailableSlots returns the slots for a clinic on a date. A closed day
// yields an empty list. If the clinic's schedule cannot be loaded the
// allocator degrades to a fixed default slot list instead of failing the
// caller.
func (a *Allocator) GetAvailableSlots(ctx context.Context, clinicID types.ID, date types.Date) ([]TimeSlot, error) {
	booked := a.bookedSet(ctx, clinicID, date)

	c, err := a.clinics.GetClinic(ctx, clinicID)
	if err != nil {
		metrics.RecordSlotQuery("fallback")
		return defaultSlots(booked, 0), nil
	}

	hours, open := c.HoursFor(date.Weekday())
	if !open {
		metrics.RecordSlotQuery("closed")
		return []TimeSlot{}, nil
	}

	metrics.RecordSlotQuery("schedule")
	return buildSlots(hours.OpensAt, hours.ClosesAt, booked, c.ConsultationFee), nil
}

// bookedSet loads occupied slot times. A lookup failure is treated as no
// bookings: the view is advisory and the ledger rejects real conflicts.
func (a *Allocator) bookedSet(ctx context.Context, clinicID types.ID, date types.Date) map[types.TimeOfDay]bool {
	times, err := a.bookings.BookedTimes(ctx, clinicID, date)
	if err != nil {
		return nil
	}

	booked := make(map[types.TimeOfDay]bool, len(times))
	for _, t := range times {
		booked[t] = true
	}
	return booked
}

// buildSlots enumerates fixed-width slots from open to close, skipping the
// lunch hour, and marks a slot unavailable when its start time exactly
// matches a booked time.
func buildSlots(open, close types.TimeOfDay, booked map[types.TimeOfDay]bool, fee float64) []TimeSlot {
	slots := []TimeSlot{}

	for t := open; t.Before(close); t = t.Add(SlotDurationMinutes) {
		if t.Hour() == lunchHour {
			continue
		}
		slots = append(slots, TimeSlot{
			Time:            t,
			Available:       !booked[t],
			ConsultationFee: fee,
		})
	}

	return slots
}

// defaultSlots is the degrade path when a clinic's schedule is
// unavailable: morning 09:00-11:30 and afternoon 14:00-17:00 in half-hour
// increments.
func defaultSlots(booked map[types.TimeOfDay]bool, fee float64) []TimeSlot {
	var slots []TimeSlot

	add := func(from, to types.TimeOfDay) {
		for t := from; !to.Before(t); t = t.Add(SlotDurationMinutes) {
			slots = append(slots, TimeSlot{
				Time:            t,
				Available:       !booked[t],
				ConsultationFee: fee,
			})
		}
	}

	add("09:00", "11:30")
	add("14:00", "17:00")

	return slots
}
