package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindUserLogin        Kind = "USER_LOGIN"
	KindUserLogout       Kind = "USER_LOGOUT"
	KindUserDisconnected Kind = "USER_DISCONNECTED"
	KindBidPlaced        Kind = "BID_PLACED"
	KindBidOverbid       Kind = "BID_OVERBID"
	KindBidWon           Kind = "BID_WON"
	KindAuctionStarted   Kind = "AUCTION_STARTED"
	KindAuctionEnded     Kind = "AUCTION_ENDED"
)

var (
	ErrUnknownKind     = errors.New("unknown_event_kind")
	ErrPayloadMismatch = errors.New("event_payload_mismatch")
)

// Payload is implemented only by the payload types of this package.
type Payload interface {
	payload()
}

type UserPayload struct {
	UserName string `json:"user_name"`
}

type BidPayload struct {
	UserName  string  `json:"user_name"`
	AuctionID int64   `json:"auction_id"`
	Price     float64 `json:"price"`
}

type AuctionPayload struct {
	AuctionID   int64  `json:"auction_id"`
	Owner       string `json:"owner,omitempty"`
	Description string `json:"description,omitempty"`
}

func (UserPayload) payload()    {}
func (BidPayload) payload()     {}
func (AuctionPayload) payload() {}

type Event struct {
	ID        string
	Kind      Kind
	Timestamp time.Time
	Payload   Payload
}

func New(kind Kind, at time.Time, payload Payload) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: at,
		Payload:   payload,
	}
}

func UserEvent(kind Kind, at time.Time, user string) Event {
	return New(kind, at, UserPayload{UserName: user})
}

func ParseKind(raw string) (Kind, error) {
	kind := Kind(strings.ToUpper(strings.TrimSpace(raw)))
	switch kind {
	case KindUserLogin, KindUserLogout, KindUserDisconnected,
		KindBidPlaced, KindBidOverbid, KindBidWon,
		KindAuctionStarted, KindAuctionEnded:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

// Validate reports whether the payload type matches the kind.
func (e Event) Validate() error {
	var ok bool
	switch e.Kind {
	case KindUserLogin, KindUserLogout, KindUserDisconnected:
		_, ok = e.Payload.(UserPayload)
	case KindBidPlaced, KindBidOverbid, KindBidWon:
		_, ok = e.Payload.(BidPayload)
	case KindAuctionStarted, KindAuctionEnded:
		_, ok = e.Payload.(AuctionPayload)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrPayloadMismatch, e.Kind)
	}
	return nil
}

func (e Event) String() string {
	head := fmt.Sprintf("%s %s", e.Timestamp.UTC().Format(time.RFC3339), e.Kind)
	switch p := e.Payload.(type) {
	case UserPayload:
		switch e.Kind {
		case KindUserLogin:
			return fmt.Sprintf("%s - user %s logged in", head, p.UserName)
		case KindUserLogout:
			return fmt.Sprintf("%s - user %s logged out", head, p.UserName)
		case KindUserDisconnected:
			return fmt.Sprintf("%s - user %s disconnected", head, p.UserName)
		}
	case BidPayload:
		price := strconv.FormatFloat(p.Price, 'f', -1, 64)
		switch e.Kind {
		case KindBidPlaced:
			return fmt.Sprintf("%s - user %s placed bid %s on auction %d", head, p.UserName, price, p.AuctionID)
		case KindBidOverbid:
			return fmt.Sprintf("%s - user %s overbid with %s on auction %d", head, p.UserName, price, p.AuctionID)
		case KindBidWon:
			return fmt.Sprintf("%s - user %s won auction %d with %s", head, p.UserName, p.AuctionID, price)
		}
	case AuctionPayload:
		switch e.Kind {
		case KindAuctionStarted:
			return fmt.Sprintf("%s - auction %d started by %s", head, p.AuctionID, p.Owner)
		case KindAuctionEnded:
			return fmt.Sprintf("%s - auction %d ended", head, p.AuctionID)
		}
	}
	return head
}

// UserName returns the user the event concerns, if any.
func (e Event) UserName() string {
	switch p := e.Payload.(type) {
	case UserPayload:
		return p.UserName
	case BidPayload:
		return p.UserName
	case AuctionPayload:
		return p.Owner
	}
	return ""
}

type wireEvent struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{
		ID:        e.ID,
		Kind:      e.Kind,
		Timestamp: e.Timestamp.UnixMilli(),
		Payload:   payload,
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	kind, err := ParseKind(string(wire.Kind))
	if err != nil {
		return err
	}

	var payload Payload
	switch kind {
	case KindUserLogin, KindUserLogout, KindUserDisconnected:
		var p UserPayload
		err = decodePayload(wire.Payload, &p)
		payload = p
	case KindBidPlaced, KindBidOverbid, KindBidWon:
		var p BidPayload
		err = decodePayload(wire.Payload, &p)
		payload = p
	default:
		var p AuctionPayload
		err = decodePayload(wire.Payload, &p)
		payload = p
	}
	if err != nil {
		return err
	}

	*e = Event{
		ID:        wire.ID,
		Kind:      kind,
		Timestamp: time.UnixMilli(wire.Timestamp).UTC(),
		Payload:   payload,
	}
	return nil
}

func decodePayload(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, into)
}
