// Package postoffice is the in-process typed mailbox registry described in
// spec.md §2/§5: each message type owns exactly one bounded, lazily-created
// channel. It is the Go rendering of the original's typemap-keyed registry
// (original_source/src/postoffice.rs) — Go has no ambient typemap, so the
// registry keys on reflect.Type instead and exposes the same
// post/receive operations as free generic functions.
package postoffice

import (
	"reflect"
	"sync"
)

// mailboxBufferSize is the bounded capacity every mailbox channel shares.
// Senders block when full — this is the system's backpressure mechanism
// (spec.md §5 "Mailboxes").
const mailboxBufferSize = 32

// PostOffice owns one channel per registered message type.
type PostOffice struct {
	mu       sync.Mutex
	mailboxes map[reflect.Type]any
}

// New returns an empty PostOffice. A Server owns exactly one instance and
// passes it by reference into every core loop — never recreated, never
// accessed through a package-level global.
func New() *PostOffice {
	return &PostOffice{mailboxes: make(map[reflect.Type]any)}
}

// mailboxFor returns (creating if necessary) the channel registered for T.
func mailboxFor[T any](po *PostOffice) chan T {
	po.mu.Lock()
	defer po.mu.Unlock()

	key := reflect.TypeFor[T]()
	if existing, ok := po.mailboxes[key]; ok {
		return existing.(chan T)
	}
	ch := make(chan T, mailboxBufferSize)
	po.mailboxes[key] = ch
	return ch
}

// Post sends msg to the mailbox for T, blocking if the mailbox is full.
func Post[T any](po *PostOffice, msg T) {
	mailboxFor[T](po) <- msg
}

// TryPost attempts to send msg without blocking. Returns false if the
// mailbox is full.
func TryPost[T any](po *PostOffice, msg T) bool {
	select {
	case mailboxFor[T](po) <- msg:
		return true
	default:
		return false
	}
}

// Mailbox returns the receive-only end of T's mailbox, for loops that
// select over multiple message types or want direct access.
func Mailbox[T any](po *PostOffice) <-chan T {
	return mailboxFor[T](po)
}
