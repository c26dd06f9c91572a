package combos

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jakechorley/clinic-planner/pkg/core/demand"
)

// ErrMalformedKey is returned when a variable name cannot be parsed back into a key
var ErrMalformedKey = errors.New("malformed combo key")

// RefKind says what a half-day of a combo is assigned to
type RefKind int

const (
	RefAdmin RefKind = iota
	RefLocation
	RefSurgical
)

// NeedRef identifies the need a half-day is assigned to, or administrative time
type NeedRef struct {
	Kind       RefKind
	LocationID string
	SessionID  string
	RoleID     string
}

// AdminRef is the administrative (unassigned) half-day
func AdminRef() NeedRef {
	return NeedRef{Kind: RefAdmin}
}

// RefFor returns the reference of a need; a nil need is administrative
func RefFor(n *demand.Need) NeedRef {
	if n == nil {
		return AdminRef()
	}
	if n.Kind == demand.KindSurgicalRole {
		return NeedRef{Kind: RefSurgical, LocationID: n.LocationID, SessionID: n.SessionID, RoleID: n.RoleID}
	}
	return NeedRef{Kind: RefLocation, LocationID: n.LocationID}
}

func (r NeedRef) IsAdmin() bool {
	return r.Kind == RefAdmin
}

// String encodes the reference: "A", "L:<location>" or "S:<location>:<session>:<role>"
func (r NeedRef) String() string {
	switch r.Kind {
	case RefLocation:
		return "L:" + escape(r.LocationID)
	case RefSurgical:
		return "S:" + escape(r.LocationID) + ":" + escape(r.SessionID) + ":" + escape(r.RoleID)
	default:
		return "A"
	}
}

// Matches reports whether two references designate the same assignment. Surgical
// references compare session and role only.
func (r NeedRef) Matches(other NeedRef) bool {
	if r.Kind != other.Kind {
		return false
	}
	switch r.Kind {
	case RefLocation:
		return r.LocationID == other.LocationID
	case RefSurgical:
		return r.SessionID == other.SessionID && r.RoleID == other.RoleID
	default:
		return true
	}
}

func parseRef(s string) (NeedRef, error) {
	parts := strings.Split(s, ":")
	switch {
	case len(parts) == 1 && parts[0] == "A":
		return AdminRef(), nil
	case len(parts) == 2 && parts[0] == "L" && parts[1] != "":
		return NeedRef{Kind: RefLocation, LocationID: unescape(parts[1])}, nil
	case len(parts) == 4 && parts[0] == "S" && parts[2] != "" && parts[3] != "":
		return NeedRef{
			Kind:       RefSurgical,
			LocationID: unescape(parts[1]),
			SessionID:  unescape(parts[2]),
			RoleID:     unescape(parts[3]),
		}, nil
	}
	return NeedRef{}, fmt.Errorf("%w: bad need reference %q", ErrMalformedKey, s)
}

// ComboKey identifies one candidate day plan of one staff member
type ComboKey struct {
	StaffID   string
	Date      string
	Morning   NeedRef
	Afternoon NeedRef
}

const keyPrefix = "x"

// String encodes the key as a model variable name: x|<staff>|<date>|<morning>|<afternoon>
func (k ComboKey) String() string {
	return strings.Join([]string{
		keyPrefix,
		escape(k.StaffID),
		escape(k.Date),
		k.Morning.String(),
		k.Afternoon.String(),
	}, "|")
}

// ParseKey decodes a variable name produced by ComboKey.String
func ParseKey(s string) (ComboKey, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 5 || parts[0] != keyPrefix || parts[1] == "" || parts[2] == "" {
		return ComboKey{}, fmt.Errorf("%w: %q", ErrMalformedKey, s)
	}

	morning, err := parseRef(parts[3])
	if err != nil {
		return ComboKey{}, err
	}
	afternoon, err := parseRef(parts[4])
	if err != nil {
		return ComboKey{}, err
	}

	return ComboKey{
		StaffID:   unescape(parts[1]),
		Date:      unescape(parts[2]),
		Morning:   morning,
		Afternoon: afternoon,
	}, nil
}

// Identifiers are opaque; the separators used by the encoding are percent-escaped
var (
	escaper   = strings.NewReplacer("%", "%25", "|", "%7C", ":", "%3A")
	unescaper = strings.NewReplacer("%7C", "|", "%3A", ":", "%25", "%")
)

func escape(s string) string {
	return escaper.Replace(s)
}

func unescape(s string) string {
	return unescaper.Replace(s)
}
