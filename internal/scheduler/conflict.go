package scheduler

// BlockKind distinguishes personal busy periods from organisation-wide blackouts.
type BlockKind string

const (
	// BlockKindPersonal applies only to the owning user.
	BlockKindPersonal BlockKind = "PERSONAL"
	// BlockKindGlobal applies to every user.
	BlockKindGlobal BlockKind = "GLOBAL"
)

// Reason tags reported for availability conflicts.
const (
	ReasonBusy    = "busy"
	ReasonHoliday = "holiday"
)

// Block is an availability block as seen by the detector.
type Block struct {
	ID     string
	Kind   BlockKind
	UserID string
	Window Interval
}

// AvailabilityConflict names a block that overlaps a candidate window.
type AvailabilityConflict struct {
	BlockID string
	Reason  string
	Window  Interval
}

// Booking is one enrollment of a user in a session.
type Booking struct {
	SessionID string
	UserID    string
	Title     string
	Window    Interval
}

// BookingConflict names a session the user is already enrolled in during the candidate window.
type BookingConflict struct {
	SessionID string
	Title     string
	Window    Interval
}

// AvailabilityConflicts reports, per user, every block that overlaps window.
// Personal blocks count only for their owner; global blocks count for everyone.
// Users without conflicts are absent from the result.
func AvailabilityConflicts(window Interval, userIDs []string, blocks []Block) map[string][]AvailabilityConflict {
	result := make(map[string][]AvailabilityConflict)
	if len(userIDs) == 0 {
		return result
	}

	var global []AvailabilityConflict
	personal := make(map[string][]AvailabilityConflict)
	for _, block := range blocks {
		if !Overlaps(window, block.Window) {
			continue
		}
		switch block.Kind {
		case BlockKindGlobal:
			global = append(global, AvailabilityConflict{BlockID: block.ID, Reason: ReasonHoliday, Window: block.Window})
		case BlockKindPersonal:
			if block.UserID == "" {
				continue
			}
			personal[block.UserID] = append(personal[block.UserID], AvailabilityConflict{BlockID: block.ID, Reason: ReasonBusy, Window: block.Window})
		}
	}

	for _, id := range userIDs {
		if _, seen := result[id]; seen {
			continue
		}
		items := make([]AvailabilityConflict, 0, len(personal[id])+len(global))
		items = append(items, personal[id]...)
		items = append(items, global...)
		if len(items) > 0 {
			result[id] = items
		}
	}
	return result
}

// IsBlocked reports whether userID has any personal or global block overlapping window.
func IsBlocked(window Interval, userID string, blocks []Block) bool {
	for _, block := range blocks {
		if !Overlaps(window, block.Window) {
			continue
		}
		if block.Kind == BlockKindGlobal || block.UserID == userID {
			return true
		}
	}
	return false
}

// EnrollmentConflicts reports, per user, every booking overlapping window.
// Bookings for excludeSessionID are ignored so an edited session never conflicts with itself.
func EnrollmentConflicts(window Interval, userIDs []string, bookings []Booking, excludeSessionID string) map[string][]BookingConflict {
	result := make(map[string][]BookingConflict)
	if len(userIDs) == 0 {
		return result
	}

	wanted := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = struct{}{}
	}

	for _, booking := range bookings {
		if excludeSessionID != "" && booking.SessionID == excludeSessionID {
			continue
		}
		if _, ok := wanted[booking.UserID]; !ok {
			continue
		}
		if !Overlaps(window, booking.Window) {
			continue
		}
		result[booking.UserID] = append(result[booking.UserID], BookingConflict{
			SessionID: booking.SessionID,
			Title:     booking.Title,
			Window:    booking.Window,
		})
	}
	return result
}
