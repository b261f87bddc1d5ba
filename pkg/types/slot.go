package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SlotKind classifies how a slot's quantity should be interpreted and
// humanised: a plain count, or a byte quantity (humanised as KiB/MiB/...).
type SlotKind string

const (
	SlotKindCount SlotKind = "count"
	SlotKindBytes SlotKind = "bytes"
)

// SlotName is the parsed form of a slot identifier, `device[.major[:minor]]`.
// A SlotName with a non-empty Major is an Accelerator slot; otherwise it is
// a SystemSlot.
type SlotName struct {
	Device string
	Major  string
	Minor  string
}

// ParseSlotName parses "cpu", "cuda.shares" or "cuda.device:mig-10g" into
// its device/major/minor components. Device is mandatory; Major and Minor
// are optional and empty when absent.
func ParseSlotName(raw string) (SlotName, error) {
	if raw == "" {
		return SlotName{}, fmt.Errorf("empty slot name")
	}
	dot := strings.IndexByte(raw, '.')
	if dot < 0 {
		return SlotName{Device: raw}, nil
	}
	device := raw[:dot]
	rest := raw[dot+1:]
	if rest == "" {
		return SlotName{}, fmt.Errorf("invalid slot name %q: empty accelerator suffix", raw)
	}
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return SlotName{Device: device, Major: rest}, nil
	}
	major := rest[:colon]
	minor := rest[colon+1:]
	if major == "" {
		return SlotName{}, fmt.Errorf("invalid slot name %q: empty accelerator major", raw)
	}
	return SlotName{Device: device, Major: major, Minor: minor}, nil
}

// MustSlotName parses raw and panics on error; for literal constants.
func MustSlotName(raw string) SlotName {
	n, err := ParseSlotName(raw)
	if err != nil {
		panic(err)
	}
	return n
}

// IsAccelerator reports whether the slot name carries an accelerator
// major component ("a `.` is present" per the device naming convention).
func (n SlotName) IsAccelerator() bool { return n.Major != "" }

// String round-trips through ParseSlotName.
func (n SlotName) String() string {
	if n.Major == "" {
		return n.Device
	}
	if n.Minor == "" {
		return n.Device + "." + n.Major
	}
	return n.Device + "." + n.Major + ":" + n.Minor
}

func (n SlotName) MarshalText() ([]byte, error) { return []byte(n.String()), nil }

func (n *SlotName) UnmarshalText(text []byte) error {
	parsed, err := ParseSlotName(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// SlotType is the catalog entry for a known slot name.
type SlotType struct {
	Name SlotName
	Kind SlotKind
}

// ResourceSlot maps a slot name to its quantity. Missing keys behave as
// the finite zero on read, compare and arithmetic ("auto-sync to 0").
type ResourceSlot map[SlotName]Decimal

// NewResourceSlot builds a ResourceSlot from a map keyed by raw slot-name
// strings, a convenience for literal construction in tests and config.
func NewResourceSlot(raw map[string]Decimal) (ResourceSlot, error) {
	out := make(ResourceSlot, len(raw))
	for k, v := range raw {
		name, err := ParseSlotName(k)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// Get returns the quantity for name, or the finite zero if absent.
func (s ResourceSlot) Get(name SlotName) Decimal {
	if v, ok := s[name]; ok {
		return v
	}
	return Zero
}

// Add returns the slot-wise sum of s and other; a key present in either
// operand appears in the result.
func (s ResourceSlot) Add(other ResourceSlot) ResourceSlot {
	out := make(ResourceSlot, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = out[k].Add(v)
	}
	return out
}

// Sub returns the slot-wise difference s - other.
func (s ResourceSlot) Sub(other ResourceSlot) ResourceSlot {
	out := make(ResourceSlot, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = out[k].Sub(v)
	}
	return out
}

// Contains reports whether s is a superset of other: for every slot in
// other, s carries at least that much (eq_contains).
func (s ResourceSlot) Contains(other ResourceSlot) bool {
	for k, v := range other {
		if s.Get(k).LessThan(v) {
			return false
		}
	}
	return true
}

// ContainedIn reports whether s is a subset of other: every slot in s is
// at most what other carries (eq_contained). Slots in other but absent
// from s are ignored, matching the auto-zero-fill semantics.
func (s ResourceSlot) ContainedIn(other ResourceSlot) bool {
	return other.Contains(s)
}

// Fits reports whether requested fits within available - occupied,
// slot-by-slot. This is the "fits" predicate used by the agent selector.
func Fits(available, occupied, requested ResourceSlot) bool {
	for name, req := range requested {
		free := available.Get(name).Sub(occupied.Get(name))
		if free.LessThan(req) {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy safe to mutate independently of s.
func (s ResourceSlot) Clone() ResourceSlot {
	out := make(ResourceSlot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// sortedNames returns s's keys in a deterministic order, used for
// stable JSON output and logging.
func (s ResourceSlot) sortedNames() []SlotName {
	names := make([]SlotName, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool { return names[i].String() < names[j].String() })
	return names
}

// MarshalJSON renders the slot as a flat map of raw decimal strings keyed
// by slot name.
func (s ResourceSlot) MarshalJSON() ([]byte, error) {
	raw := make(map[string]string, len(s))
	for _, name := range s.sortedNames() {
		raw[name.String()] = s[name].String()
	}
	return json.Marshal(raw)
}

func (s *ResourceSlot) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(ResourceSlot, len(raw))
	for k, v := range raw {
		name, err := ParseSlotName(k)
		if err != nil {
			return err
		}
		dec, err := ParseDecimal(v)
		if err != nil {
			return err
		}
		out[name] = dec
	}
	*s = out
	return nil
}

// Humanize renders a quantity for display according to its catalog kind:
// bytes are scaled to the largest whole unit (KiB/MiB/GiB/TiB), counts are
// rendered as plain decimals.
func Humanize(kind SlotKind, q Decimal) string {
	if kind != SlotKindBytes || q.IsInfinite() {
		return q.String()
	}
	bf, ok := new(bigFloatProxy).fromDecimal(q)
	if !ok {
		return q.String()
	}
	const unit = 1024.0
	units := []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}
	v := bf
	idx := 0
	for v >= unit && idx < len(units)-1 {
		v /= unit
		idx++
	}
	return strconv.FormatFloat(v, 'f', 2, 64) + units[idx]
}

// bigFloatProxy converts a Decimal to float64 for humanisation only; exact
// arithmetic elsewhere never goes through this path.
type bigFloatProxy struct{}

func (bigFloatProxy) fromDecimal(d Decimal) (float64, bool) {
	f, _ := strconv.ParseFloat(d.String(), 64)
	return f, true
}
