package domain

import "time"

// Message is one payload received from a member, stamped on arrival.
// Never mutated after creation.
type Message struct {
	Text string
	At   time.Time
}
