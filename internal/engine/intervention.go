package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/realm-market/internal/economy"
)

var (
	// ErrUnknownRegion is returned when an event targets a region that does not exist.
	ErrUnknownRegion = economy.ErrUnknownRegion

	// ErrInvalidEventIndex is returned when the index is outside the region's event menu.
	ErrInvalidEventIndex = errors.New("invalid event index")
)

// EventApplicationError reports an unexpected failure while applying an event.
type EventApplicationError struct {
	Message string
}

func (e *EventApplicationError) Error() string {
	return "error triggering event: " + e.Message
}

// TriggerEvent applies event index of region's menu: every affected price
// is multiplied by 1+effect and clamped to its floor, the event is appended
// to the bounded history and becomes the region's last event. It returns
// the event description.
func (m *Market) TriggerEvent(ctx context.Context, region economy.Region, index int) (string, error) {
	if !region.Valid() {
		return "", fmt.Errorf("%w: %d", ErrUnknownRegion, uint8(region))
	}
	event, ok := region.Event(index)
	if !ok {
		return "", fmt.Errorf("%w: %d for %s", ErrInvalidEventIndex, index, region)
	}

	rec, err := m.applyEvent(ctx, region, event)

	var appErr *EventApplicationError
	switch {
	case errors.As(err, &appErr):
		slog.Error("event application failed", "region", region.String(), "index", index, "error", err)
		return "", err
	case err != nil:
		slog.Error("event applied but state not saved", "region", region.String(), "event", event.Description, "error", err)
	default:
		slog.Info("event triggered", "region", region.String(), "event", event.Description, "id", rec.ID)
	}

	m.publish(Update{
		Kind:        UpdateEvent,
		Day:         m.Day(),
		Region:      region.String(),
		Description: event.Description,
		At:          rec.Timestamp,
	})
	return event.Description, err
}

// TriggerNamed is TriggerEvent with the region given by display name.
func (m *Market) TriggerNamed(ctx context.Context, regionName string, index int) (string, error) {
	r, err := economy.ParseRegion(regionName)
	if err != nil {
		return "", err
	}
	return m.TriggerEvent(ctx, r, index)
}

// applyEvent stages the new prices and the event record before touching
// market state, so a recovered panic leaves the market unchanged.
func (m *Market) applyEvent(ctx context.Context, region economy.Region, event economy.EventTemplate) (rec EventRecord, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = &EventApplicationError{Message: fmt.Sprint(r)}
		}
	}()

	staged := m.prices[region]
	for _, c := range economy.Commodities() {
		effect, ok := event.Effects[c]
		if !ok {
			continue
		}
		pp := staged[c].clone()
		pp.record(math.Max(pp.CurrentPrice*(1+effect), c.Floor()))
		staged[c] = pp
	}

	rec = EventRecord{
		ID:          m.newID(),
		Timestamp:   m.now().UTC(),
		Region:      region,
		Description: event.Description,
		Effects:     event.Effects,
	}

	m.prices[region] = staged
	m.events = append(m.events, rec)
	if n := len(m.events); n > EventHistoryWindow {
		m.events = append(m.events[:0:0], m.events[n-EventHistoryWindow:]...)
	}
	m.lastEvents[region] = event.Description

	return rec, m.persistLocked(ctx)
}

// Result is the success flag and human-readable message shown to callers.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// EventResult converts the outcome of TriggerEvent into a Result.
func EventResult(region, description string, err error) Result {
	var (
		appErr     *EventApplicationError
		persistErr *PersistError
	)
	switch {
	case err == nil:
		return Result{Success: true, Message: fmt.Sprintf("Event '%s' triggered in %s", description, region)}
	case errors.Is(err, ErrUnknownRegion):
		return Result{Message: "Invalid region"}
	case errors.Is(err, ErrInvalidEventIndex):
		return Result{Message: "Invalid event index"}
	case errors.As(err, &appErr):
		return Result{Message: "Error triggering event: " + appErr.Message}
	case errors.As(err, &persistErr):
		return Result{Message: fmt.Sprintf("Event '%s' triggered in %s but could not be saved: %v", description, region, persistErr.Err)}
	default:
		return Result{Message: "Error triggering event: " + err.Error()}
	}
}

// AdvanceResult converts the outcome of AdvanceDay into a Result.
func AdvanceResult(day uint64, err error) Result {
	if err != nil {
		return Result{Message: fmt.Sprintf("Day %d simulated but could not be saved: %v", day, err)}
	}
	return Result{Success: true, Message: fmt.Sprintf("Prices updated for %s", SimDate(day))}
}
