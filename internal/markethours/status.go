package markethours

import (
	"time"

	"papertrade-backend/internal/model"
)

// Status resolves the full market status for t: open flag, a display
// message, and the next open estimate when closed.
func Status(t time.Time) model.MarketStatus {
	if IsOpen(t) {
		return model.MarketStatus{
			IsOpen:  true,
			Message: StatusMessage(t),
		}
	}
	next := NextOpen(t)
	return model.MarketStatus{
		IsOpen:   false,
		Message:  StatusMessage(t),
		NextOpen: &next,
	}
}
