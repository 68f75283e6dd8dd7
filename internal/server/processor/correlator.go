package processor

import (
	"time"

	"github.com/google/uuid"
)

// Ticket identifies one analysis request and the position it was issued for
type Ticket struct {
	ID          string
	Fingerprint string
	IssuedAt    time.Time
}

// IsCurrent is the delivery rule: a result is relevant only while the
// session still shows the position it was computed for
func IsCurrent(resultFingerprint, liveFingerprint string) bool {
	return resultFingerprint == liveFingerprint
}

// Correlator tracks the request in flight for one session.
// Not safe for concurrent use; the owning session serialises access.
type Correlator struct {
	pending *Ticket
	issued  int
}

func NewCorrelator() *Correlator {
	return &Correlator{}
}

// Issue records a new request for fingerprint, superseding any pending one.
// The superseded request keeps running; only its delivery is affected.
func (c *Correlator) Issue(fingerprint string) Ticket {
	t := Ticket{
		ID:          uuid.New().String(),
		Fingerprint: fingerprint,
		IssuedAt:    time.Now(),
	}
	c.pending = &t
	c.issued++
	return t
}

// Pending returns the most recent unresolved ticket
func (c *Correlator) Pending() (Ticket, bool) {
	if c.pending == nil {
		return Ticket{}, false
	}
	return *c.pending, true
}

// Issued returns how many tickets this correlator has handed out
func (c *Correlator) Issued() int {
	return c.issued
}

// Resolve is called once per completed request, at delivery time, with the
// session's live fingerprint. It reports whether the result may be delivered.
func (c *Correlator) Resolve(t Ticket, liveFingerprint string) bool {
	if c.pending != nil && c.pending.ID == t.ID {
		c.pending = nil
	}
	return IsCurrent(t.Fingerprint, liveFingerprint)
}
