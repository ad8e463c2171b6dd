// Package guest owns the guest roster: the guest entity, its validation
// rules, the roster state container, and the derived views the UI reads.
package guest

import (
	"sort"
	"strings"
	"time"

	apperrors "github.com/hearthplan/hearthplan/internal/platform/errors"
)

// GroupCouple is the reserved group tag for the couple's own guest rows.
const GroupCouple = "couple"

// Status distinguishes adult and child guests for catering counts.
type Status string

const (
	StatusAdult Status = "adult"
	StatusChild Status = "child"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	return s == StatusAdult || s == StatusChild
}

// RSVP is the three-value invitation state. Legacy rows occasionally carried
// extra values (sent, attending); those are rejected here.
type RSVP string

const (
	RSVPPending   RSVP = "pending"
	RSVPConfirmed RSVP = "confirmed"
	RSVPDeclined  RSVP = "declined"
)

// Valid reports whether the RSVP is a known value.
func (r RSVP) Valid() bool {
	return r == RSVPPending || r == RSVPConfirmed || r == RSVPDeclined
}

// DiscountType marks vendor or courtesy pricing for a guest.
type DiscountType string

const (
	DiscountNone DiscountType = "none"
	DiscountHalf DiscountType = "discount"
	DiscountFree DiscountType = "free"
)

// Valid reports whether the discount type is a known value.
func (d DiscountType) Valid() bool {
	return d == DiscountNone || d == DiscountHalf || d == DiscountFree
}

// Role identifies the guest's part in the event. At most one bride and one
// groom may exist per identity.
type Role string

const (
	RoleBride  Role = "bride"
	RoleGroom  Role = "groom"
	RoleGuest  Role = "guest"
	RoleVendor Role = "vendor"
)

// Valid reports whether the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleBride, RoleGroom, RoleGuest, RoleVendor:
		return true
	}
	return false
}

// Unique reports whether the role may appear at most once per identity.
func (r Role) Unique() bool {
	return r == RoleBride || r == RoleGroom
}

// Seat is one table assignment. A nil *Seat means unassigned; table and seat
// index are always set or cleared together.
type Seat struct {
	TableID string
	Index   int
}

// Guest is one identity-scoped roster entry.
type Guest struct {
	ID                 string
	FirstName          string
	LastName           string
	Group              string
	Status             Status
	RSVP               RSVP
	NeedsAccommodation bool
	NeedsTransport     bool
	IsServiceProvider  bool
	DiscountType       DiscountType
	CompanionOf        string // guest id; one level deep, never chained
	Seat               *Seat
	Role               Role
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// FullName returns the display name.
func (g Guest) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(g.FirstName) + " " + strings.TrimSpace(g.LastName))
}

// Seated reports whether the guest holds a table assignment.
func (g Guest) Seated() bool {
	return g.Seat != nil
}

// CreateInput describes a new guest.
type CreateInput struct {
	FirstName          string
	LastName           string
	Group              string
	Status             Status
	RSVP               RSVP
	NeedsAccommodation bool
	NeedsTransport     bool
	IsServiceProvider  bool
	DiscountType       DiscountType
	CompanionOf        string
	Role               Role
}

// Patch carries a partial guest update. Nil fields are untouched. ClearSeat
// and Seat are mutually exclusive; ClearSeat wins when both are set.
type Patch struct {
	FirstName          *string
	LastName           *string
	Group              *string
	Status             *Status
	RSVP               *RSVP
	NeedsAccommodation *bool
	NeedsTransport     *bool
	IsServiceProvider  *bool
	DiscountType       *DiscountType
	CompanionOf        *string // empty string unlinks
	Seat               *Seat
	ClearSeat          bool
	Role               *Role
}

// NormalizeCreateInput trims, applies defaults, and validates a new guest.
// Violations are reported one message per field.
func NormalizeCreateInput(input CreateInput) (CreateInput, error) {
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Group = strings.TrimSpace(input.Group)
	input.CompanionOf = strings.TrimSpace(input.CompanionOf)
	if input.Status == "" {
		input.Status = StatusAdult
	}
	if input.RSVP == "" {
		input.RSVP = RSVPPending
	}
	if input.DiscountType == "" {
		input.DiscountType = DiscountNone
	}
	if input.Role == "" {
		input.Role = RoleGuest
	}

	violations := map[string]string{}
	code := apperrors.CodeUnknown
	if input.FirstName == "" && input.LastName == "" {
		violations["name"] = "a first or last name is required"
		code = apperrors.CodeGuestNameEmpty
	}
	if !input.Status.Valid() {
		violations["status"] = "status must be adult or child"
		if code == apperrors.CodeUnknown {
			code = apperrors.CodeGuestInvalidStatus
		}
	}
	if !input.RSVP.Valid() {
		violations["rsvp"] = "rsvp must be pending, confirmed or declined"
		if code == apperrors.CodeUnknown {
			code = apperrors.CodeGuestInvalidRSVP
		}
	}
	if !input.DiscountType.Valid() {
		violations["discountType"] = "discount type must be none, discount or free"
		if code == apperrors.CodeUnknown {
			code = apperrors.CodeGuestInvalidDiscount
		}
	}
	if !input.Role.Valid() {
		violations["role"] = "role must be bride, groom, guest or vendor"
		if code == apperrors.CodeUnknown {
			code = apperrors.CodeGuestInvalidRole
		}
	}
	if len(violations) > 0 {
		return CreateInput{}, apperrors.WithMetadata(code, "guest validation failed", violations)
	}
	return input, nil
}

// ValidatePatch checks the enum fields of a partial update.
func ValidatePatch(patch Patch) error {
	violations := map[string]string{}
	code := apperrors.CodeUnknown
	if patch.Status != nil && !patch.Status.Valid() {
		violations["status"] = "status must be adult or child"
		code = apperrors.CodeGuestInvalidStatus
	}
	if patch.RSVP != nil && !patch.RSVP.Valid() {
		violations["rsvp"] = "rsvp must be pending, confirmed or declined"
		if code == apperrors.CodeUnknown {
			code = apperrors.CodeGuestInvalidRSVP
		}
	}
	if patch.DiscountType != nil && !patch.DiscountType.Valid() {
		violations["discountType"] = "discount type must be none, discount or free"
		if code == apperrors.CodeUnknown {
			code = apperrors.CodeGuestInvalidDiscount
		}
	}
	if patch.Role != nil && !patch.Role.Valid() {
		violations["role"] = "role must be bride, groom, guest or vendor"
		if code == apperrors.CodeUnknown {
			code = apperrors.CodeGuestInvalidRole
		}
	}
	if len(violations) > 0 {
		return apperrors.WithMetadata(code, "guest validation failed", violations)
	}
	return nil
}

// Apply returns a copy of g with the patch applied.
func (p Patch) Apply(g Guest) Guest {
	if p.FirstName != nil {
		g.FirstName = strings.TrimSpace(*p.FirstName)
	}
	if p.LastName != nil {
		g.LastName = strings.TrimSpace(*p.LastName)
	}
	if p.Group != nil {
		g.Group = strings.TrimSpace(*p.Group)
	}
	if p.Status != nil {
		g.Status = *p.Status
	}
	if p.RSVP != nil {
		g.RSVP = *p.RSVP
	}
	if p.NeedsAccommodation != nil {
		g.NeedsAccommodation = *p.NeedsAccommodation
	}
	if p.NeedsTransport != nil {
		g.NeedsTransport = *p.NeedsTransport
	}
	if p.IsServiceProvider != nil {
		g.IsServiceProvider = *p.IsServiceProvider
	}
	if p.DiscountType != nil {
		g.DiscountType = *p.DiscountType
	}
	if p.CompanionOf != nil {
		g.CompanionOf = strings.TrimSpace(*p.CompanionOf)
	}
	if p.ClearSeat {
		g.Seat = nil
	} else if p.Seat != nil {
		seat := *p.Seat
		g.Seat = &seat
	}
	if p.Role != nil {
		g.Role = *p.Role
	}
	return g
}

// CountByRSVP tallies guests per RSVP state.
func CountByRSVP(guests []Guest) map[RSVP]int {
	counts := make(map[RSVP]int, 3)
	for _, g := range guests {
		counts[g.RSVP]++
	}
	return counts
}

// ByGroup partitions guests by group tag, each group ordered as in the
// snapshot.
func ByGroup(guests []Guest) map[string][]Guest {
	groups := make(map[string][]Guest)
	for _, g := range guests {
		groups[g.Group] = append(groups[g.Group], g)
	}
	return groups
}

// ConfirmedUnseated lists confirmed guests without a table assignment.
func ConfirmedUnseated(guests []Guest) []Guest {
	var result []Guest
	for _, g := range guests {
		if g.RSVP == RSVPConfirmed && !g.Seated() {
			result = append(result, g)
		}
	}
	return result
}

// AssignedTo lists guests seated at one table, ordered by seat index.
func AssignedTo(guests []Guest, tableID string) []Guest {
	var result []Guest
	for _, g := range guests {
		if g.Seat != nil && g.Seat.TableID == tableID {
			result = append(result, g)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Seat.Index < result[j].Seat.Index
	})
	return result
}

// FindRole returns the first guest holding a role.
func FindRole(guests []Guest, role Role) (Guest, bool) {
	for _, g := range guests {
		if g.Role == role {
			return g, true
		}
	}
	return Guest{}, false
}

// CompanionsOf lists guests linked to the given guest as companions.
func CompanionsOf(guests []Guest, guestID string) []Guest {
	var result []Guest
	for _, g := range guests {
		if g.CompanionOf == guestID {
			result = append(result, g)
		}
	}
	return result
}
