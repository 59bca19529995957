// Package jobid generates job handles and maps them to numeric storage keys.
package jobid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the prefix of a job handle.
type Kind string

const (
	KindJob   Kind = "job"
	KindDebug Kind = "debug"
	KindTest  Kind = "test"
)

const suffixLen = 9

var (
	reNumeric  = regexp.MustCompile(`^-?\d+$`)
	rePrefixed = regexp.MustCompile(`^(?:job|debug|test)_(\d+)`)
)

// New returns a fresh handle of the form <kind>_<unix millis>_<random>.
func New(kind Kind) string {
	return NewAt(kind, time.Now())
}

// NewAt is New with an explicit creation time.
func NewAt(kind Kind, t time.Time) string {
	if kind == "" {
		kind = KindJob
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLen]
	return fmt.Sprintf("%s_%d_%s", kind, t.UnixMilli(), suffix)
}

// StorageKey maps a handle to its numeric storage key. It is pure and total:
//   - a numeric handle maps to its own value
//   - <job|debug|test>_<digits>... maps to the embedded timestamp
//   - anything else maps to abs of a 32-bit polynomial hash (h*31 + c)
//
// Distinct handles may share a key; stores disambiguate by the handle itself.
func StorageKey(id string) int64 {
	if reNumeric.MatchString(id) {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			return n
		}
	}
	if m := rePrefixed.FindStringSubmatch(id); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			return n
		}
	}
	return hash32(id)
}

// hash32 iterates UTF-16 code units like the legacy key scheme did so keys of
// existing records stay stable.
func hash32(s string) int64 {
	var h int32
	for _, u := range utf16Units(s) {
		h = h*31 + int32(u)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

func utf16Units(s string) []uint16 {
	units := make([]uint16, 0, len(s))
	for _, r := range s {
		switch {
		case r < 0x10000:
			units = append(units, uint16(r))
		default:
			r -= 0x10000
			units = append(units, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
		}
	}
	return units
}

// KindOf returns the prefix kind of id, or "" when id has none.
func KindOf(id string) Kind {
	prefix, _, ok := strings.Cut(id, "_")
	if !ok {
		return ""
	}
	switch Kind(prefix) {
	case KindJob, KindDebug, KindTest:
		return Kind(prefix)
	}
	return ""
}
