package model

// DeliveryStatus is the sender-perspective lifecycle stage of a message.
type DeliveryStatus string

const (
	StatusSending   DeliveryStatus = "sending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

// statusRank orders the forward-only delivery progression.
var statusRank = map[DeliveryStatus]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// CanAdvanceTo reports whether a status transition is allowed. Status only
// moves forward along sending→sent→delivered→read; sending may fail, and
// failed is terminal until a manual retry re-enters at sending.
func (s DeliveryStatus) CanAdvanceTo(next DeliveryStatus) bool {
	if next == StatusFailed {
		return s == StatusSending
	}
	if s == StatusFailed {
		return false
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}
