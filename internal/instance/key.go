// Package instance defines the identity of a requested service occurrence:
// a calendar date plus either a recurring service type or an ad-hoc ordinal.
//
// The wire form of a key is "YYYY-MM-DD" for a whole-date selection, or
// "YYYY-MM-DD:<instanceId>" where instanceId is a service type id or
// "adhoc-<N>".
package instance

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidKey is returned when a key, date, or instance id cannot be parsed.
var ErrInvalidKey = errors.New("instance: invalid key")

// Delimiter separates the date from the instance id in a serialized key.
const Delimiter = ':'

// AdhocPrefix marks ad-hoc instance ids.
const AdhocPrefix = "adhoc-"

// Kind discriminates the Instance union.
type Kind uint8

const (
	// KindDate is a legacy whole-date selection with no instance component.
	KindDate Kind = iota
	// KindTemplated references a recurring service type.
	KindTemplated
	// KindAdhoc is a one-off service identified by a per-date ordinal.
	KindAdhoc
)

func (k Kind) String() string {
	switch k {
	case KindTemplated:
		return "templated"
	case KindAdhoc:
		return "adhoc"
	default:
		return "date"
	}
}

// Instance is either Templated(serviceTypeID) or Adhoc(ordinal). The zero
// value is the whole-date instance.
type Instance struct {
	kind          Kind
	serviceTypeID string
	ordinal       int
}

// Templated returns an instance bound to a recurring service type.
func Templated(serviceTypeID string) Instance {
	return Instance{kind: KindTemplated, serviceTypeID: serviceTypeID}
}

// Adhoc returns an ad-hoc instance with the given ordinal.
func Adhoc(ordinal int) Instance {
	return Instance{kind: KindAdhoc, ordinal: ordinal}
}

// ParseInstance decodes an instance id. The empty string is the whole-date instance.
func ParseInstance(id string) (Instance, error) {
	if id == "" {
		return Instance{}, nil
	}
	if rest, ok := strings.CutPrefix(id, AdhocPrefix); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 || strconv.Itoa(n) != rest {
			return Instance{}, fmt.Errorf("%w: ad-hoc id %q", ErrInvalidKey, id)
		}
		return Adhoc(n), nil
	}
	return Templated(id), nil
}

func (i Instance) Kind() Kind { return i.kind }

// ServiceTypeID returns the referenced service type for templated instances.
func (i Instance) ServiceTypeID() (string, bool) {
	return i.serviceTypeID, i.kind == KindTemplated
}

// Ordinal returns the ad-hoc ordinal for ad-hoc instances.
func (i Instance) Ordinal() (int, bool) {
	return i.ordinal, i.kind == KindAdhoc
}

// ID returns the serialized instance id.
func (i Instance) ID() string {
	switch i.kind {
	case KindTemplated:
		return i.serviceTypeID
	case KindAdhoc:
		return AdhocPrefix + strconv.Itoa(i.ordinal)
	default:
		return ""
	}
}

// Key identifies one requested service occurrence.
type Key struct {
	Date     Date
	Instance Instance
}

// MakeKey builds a key from its parts.
func MakeKey(date Date, inst Instance) Key {
	return Key{Date: date, Instance: inst}
}

// DateKey builds a whole-date key.
func DateKey(date Date) Key {
	return Key{Date: date}
}

func (k Key) String() string {
	id := k.Instance.ID()
	if id == "" {
		return k.Date.String()
	}
	return k.Date.String() + string(Delimiter) + id
}

// ParseKey is the inverse of Key.String.
func ParseKey(value string) (Key, error) {
	if len(value) < len(DateLayout) {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, value)
	}
	date, err := ParseDate(value[:len(DateLayout)])
	if err != nil {
		return Key{}, err
	}
	rest := value[len(DateLayout):]
	if rest == "" {
		return DateKey(date), nil
	}
	if rest[0] != Delimiter || len(rest) == 1 {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, value)
	}
	inst, err := ParseInstance(rest[1:])
	if err != nil {
		return Key{}, err
	}
	return MakeKey(date, inst), nil
}

// MustParseKey is ParseKey for literals known to be valid.
func MustParseKey(value string) Key {
	k, err := ParseKey(value)
	if err != nil {
		panic(err)
	}
	return k
}

// MarshalText implements encoding.TextMarshaler so keys can be JSON map keys.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Compare orders keys by date, then by serialized instance id.
func (k Key) Compare(other Key) int {
	if c := k.Date.Compare(other.Date); c != 0 {
		return c
	}
	return strings.Compare(k.Instance.ID(), other.Instance.ID())
}

// SortKeys sorts keys in place and returns them.
func SortKeys(keys []Key) []Key {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
	return keys
}

// DistinctDates returns the sorted distinct dates of keys.
func DistinctDates(keys []Key) []Date {
	seen := make(map[Date]struct{}, len(keys))
	dates := make([]Date, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k.Date]; ok {
			continue
		}
		seen[k.Date] = struct{}{}
		dates = append(dates, k.Date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
