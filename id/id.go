// Package id defines the identifiers handed out by the queue.
//
// Every identifier is a TypeID: a short entity prefix followed by a
// base32 UUIDv7, e.g. "job_01h2xcejqtf2nbrexx3vqjhp41". IDs of one
// prefix sort by creation time.
package id

import (
	"errors"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix names the kind of entity an ID refers to.
type Prefix string

const (
	PrefixJob          Prefix = "job"
	PrefixSubscription Prefix = "sub"
	PrefixEvent        Prefix = "evt"
	PrefixWorker       Prefix = "wkr"
)

// ErrWrongPrefix is returned when a well-formed ID names another entity.
var ErrWrongPrefix = errors.New("id: wrong prefix")

// ID is a prefix-qualified TypeID. The zero value is Nil and renders as
// the empty string.
//
//nolint:recvcheck // UnmarshalText needs a pointer receiver.
type ID struct {
	tid typeid.TypeID
	ok  bool
}

// Nil is the zero ID.
var Nil ID

type (
	JobID          = ID
	SubscriptionID = ID
	EventID        = ID
	WorkerID       = ID
)

// New returns a fresh ID under prefix. Prefixes are compile-time
// constants, so a rejected prefix panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: generate %q: %v", prefix, err))
	}
	return ID{tid: tid, ok: true}
}

func NewJobID() JobID                   { return New(PrefixJob) }
func NewSubscriptionID() SubscriptionID { return New(PrefixSubscription) }
func NewEventID() EventID               { return New(PrefixEvent) }
func NewWorkerID() WorkerID             { return New(PrefixWorker) }

// Parse decodes any TypeID string.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, errors.New("id: parse: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{tid: tid, ok: true}, nil
}

// ParseJobID decodes s and requires the "job" prefix. Transports use it
// to reject foreign identifiers before they reach the store.
func ParseJobID(s string) (JobID, error) { return parseAs(s, PrefixJob) }

// ParseSubscriptionID decodes s and requires the "sub" prefix.
func ParseSubscriptionID(s string) (SubscriptionID, error) {
	return parseAs(s, PrefixSubscription)
}

func parseAs(s string, want Prefix) (ID, error) {
	v, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := v.Prefix(); got != want {
		return Nil, fmt.Errorf("%w: %q is %q, want %q", ErrWrongPrefix, s, got, want)
	}
	return v, nil
}

func (i ID) String() string {
	if !i.ok {
		return ""
	}
	return i.tid.String()
}

// Prefix returns the entity prefix, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.ok {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

func (i ID) IsNil() bool { return !i.ok }

// MarshalText encodes Nil as an empty string so that omitted IDs round
// trip through JSON and msgpack.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	v, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = v
	return nil
}
