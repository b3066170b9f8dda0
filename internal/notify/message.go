// Package notify carries change notifications from writer processes to every
// reader: it defines the sync message variants, the wire codec, the
// broadcast bus, and the dispatcher that write paths invoke after a
// mutation commits.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformed is returned by Decode for payloads that cannot be routed.
var ErrMalformed = errors.New("malformed sync message")

// Message is one broadcast notification. Subscribers re-fetch the named
// aggregate; the message never carries the changed data itself.
type Message interface {
	// Destination is the socket subscription topic the message is
	// re-published to. Clients subscribe by exact string match.
	Destination() string
	// Payload serializes the message for the bus.
	Payload() ([]byte, error)
}

// DetailSync announces that one slot's detail changed.
type DetailSync struct {
	GroupID int64 `json:"groupId"`
	SlotID  int64 `json:"slotId"`
}

func (m DetailSync) Destination() string {
	return fmt.Sprintf("/sub/groups/%d/slots/%d", m.GroupID, m.SlotID)
}

func (m DetailSync) Payload() ([]byte, error) { return json.Marshal(m) }

// DaySync announces that one day's aggregate changed.
type DaySync struct {
	GroupID int64      `json:"groupId"`
	Year    int        `json:"year"`
	Month   time.Month `json:"month"`
	Day     int        `json:"day"`
}

func (m DaySync) Destination() string {
	return fmt.Sprintf("/sub/groups/%d/date/day?year=%d&month=%d&day=%d",
		m.GroupID, m.Year, int(m.Month), m.Day)
}

func (m DaySync) Payload() ([]byte, error) { return json.Marshal(m) }

// MonthSync announces that a month's aggregate changed.
type MonthSync struct {
	GroupID int64      `json:"groupId"`
	Year    int        `json:"year"`
	Month   time.Month `json:"month"`
}

func (m MonthSync) Destination() string {
	return fmt.Sprintf("/sub/groups/%d/date/month?year=%d&month=%d",
		m.GroupID, m.Year, int(m.Month))
}

func (m MonthSync) Payload() ([]byte, error) { return json.Marshal(m) }

// wireMessage is the superset of all variant fields. The wire format carries
// no explicit type tag; pointers record which fields were present.
type wireMessage struct {
	GroupID *int64 `json:"groupId"`
	SlotID  *int64 `json:"slotId"`
	Year    *int   `json:"year"`
	Month   *int   `json:"month"`
	Day     *int   `json:"day"`
}

// Decode discriminates a bus payload by field presence, in fixed priority
// order: slotId wins, then day, then the month fields. The order is legacy
// wire compatibility: payloads carry no type tag, and a payload holding both
// slotId and day must keep routing as a DetailSync. Payloads missing
// groupId, or missing year/month for the date variants, are malformed.
func Decode(payload []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if w.GroupID == nil {
		return nil, fmt.Errorf("%w: missing groupId", ErrMalformed)
	}

	if w.SlotID != nil {
		return DetailSync{GroupID: *w.GroupID, SlotID: *w.SlotID}, nil
	}

	if w.Year == nil || w.Month == nil {
		return nil, fmt.Errorf("%w: missing year/month", ErrMalformed)
	}

	if w.Day != nil {
		return DaySync{
			GroupID: *w.GroupID,
			Year:    *w.Year,
			Month:   time.Month(*w.Month),
			Day:     *w.Day,
		}, nil
	}

	return MonthSync{
		GroupID: *w.GroupID,
		Year:    *w.Year,
		Month:   time.Month(*w.Month),
	}, nil
}
