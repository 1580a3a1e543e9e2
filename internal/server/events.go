package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/gavel/internal/events"
)

type relayEventRequest struct {
	Kind        string  `json:"kind" binding:"required"`
	Timestamp   int64   `json:"timestamp"`
	UserName    string  `json:"user_name"`
	AuctionID   int64   `json:"auction_id"`
	Price       float64 `json:"price"`
	Owner       string  `json:"owner"`
	Description string  `json:"description"`
}

// RelayEvent accepts bid and auction events from the auction server and
// forwards them to the event sinks. User events are produced only by the
// session registry.
func (s *Server) RelayEvent(c *gin.Context) {
	var req relayEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	event, err := s.buildRelayEvent(req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.sink.Notify(c.Request.Context(), event)
	c.JSON(http.StatusAccepted, gin.H{"data": event})
}

func (s *Server) buildRelayEvent(req relayEventRequest) (events.Event, error) {
	kind, err := events.ParseKind(req.Kind)
	if err != nil {
		return events.Event{}, err
	}

	at := s.now()
	if req.Timestamp > 0 {
		at = time.UnixMilli(req.Timestamp).UTC()
	}

	userName := strings.TrimSpace(req.UserName)
	switch kind {
	case events.KindBidPlaced, events.KindBidOverbid, events.KindBidWon:
		if userName == "" {
			return events.Event{}, newValidationError("user_name", "required", "user_name is required")
		}
		return events.New(kind, at, events.BidPayload{
			UserName:  userName,
			AuctionID: req.AuctionID,
			Price:     req.Price,
		}), nil
	case events.KindAuctionStarted, events.KindAuctionEnded:
		return events.New(kind, at, events.AuctionPayload{
			AuctionID:   req.AuctionID,
			Owner:       strings.TrimSpace(req.Owner),
			Description: strings.TrimSpace(req.Description),
		}), nil
	default:
		return events.Event{}, newValidationError("kind", "invalid_kind", "user events cannot be relayed")
	}
}

// StreamEvents replays the recent backlog for the requested kind (all kinds
// when omitted) and then follows new events.
func (s *Server) StreamEvents(c *gin.Context) {
	if s.eventHub == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	subscription, backlog, err := s.eventHub.Subscribe(c.Query("kind"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer subscription.Close()

	flusher, ok := beginEventStream(c)
	if !ok {
		return
	}
	for _, event := range backlog {
		if err := writeJSONEvent(c.Writer, string(event.Kind), event); err != nil {
			return
		}
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-subscription.Events():
			if err := writeJSONEvent(c.Writer, string(event.Kind), event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if err := writeHeartbeat(c.Writer); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}
