package purchase_order

// Status represents the receipt state of a purchase order.
type Status string

const (
	StatusCreated           Status = "CREATED"
	StatusFulfilled         Status = "FULFILLED"
	StatusPartiallyReceived Status = "PARTIALLY_RECEIVED"
	StatusReceived          Status = "RECEIVED"
	StatusCancelled         Status = "CANCELLED"
)

// IsValid checks if the status is a known Status.
func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusFulfilled, StatusPartiallyReceived, StatusReceived, StatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of Status.
func (s Status) String() string {
	return string(s)
}

// CanReceive returns true if goods may be booked against an order in this status.
// RECEIVED stays receivable so that edits and reversals of earlier receipts can be applied.
func (s Status) CanReceive() bool {
	switch s {
	case StatusFulfilled, StatusPartiallyReceived, StatusReceived:
		return true
	}
	return false
}

// IsOpen reports whether unreceived lines of an order in this status count as goods on order.
func (s Status) IsOpen() bool {
	switch s {
	case StatusCreated, StatusFulfilled, StatusPartiallyReceived:
		return true
	}
	return false
}

// NextStatus recomputes the order status from the aggregate receipt state of its lines.
//
//	all lines fully received          -> RECEIVED
//	some received, not all            -> PARTIALLY_RECEIVED
//	none received, previously RECEIVED -> FULFILLED
//	otherwise                         -> unchanged
func NextStatus(current Status, lines []Line) Status {
	if current == StatusCancelled || len(lines) == 0 {
		return current
	}

	full, touched := 0, 0
	for _, l := range lines {
		if l.ReceivedQuantity.IsPositive() {
			touched++
		}
		if l.IsFullyReceived() && l.ReceivedQuantity.IsPositive() {
			full++
		}
	}

	switch {
	case full == len(lines):
		return StatusReceived
	case touched > 0:
		return StatusPartiallyReceived
	case current == StatusReceived:
		return StatusFulfilled
	default:
		return current
	}
}
