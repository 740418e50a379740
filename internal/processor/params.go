package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/cast"

	"github.com/alexisbeaulieu97/diva/internal/ports"
	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

// Kind is the value kind of a parameter.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindBool
	KindString
	KindChoice
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindChoice:
		return "choice"
	default:
		return "string"
	}
}

// Param describes one processor parameter. Min and Max bound numeric kinds
// when Bounded is set.
type Param struct {
	Key     string
	Label   string
	Kind    Kind
	Default any
	Min     float64
	Max     float64
	Bounded bool
	Choices []string

	value any
}

// Value returns the current value.
func (p *Param) Value() any { return p.value }

// InRange reports whether the current numeric value lies inside [Min, Max].
func (p *Param) InRange() bool {
	if !p.Bounded {
		return true
	}
	v := cast.ToFloat64(p.value)
	return v >= p.Min && v <= p.Max
}

// Parameters is an ordered set of processor parameters. It is safe for
// concurrent use.
type Parameters struct {
	mu    sync.RWMutex
	order []string
	items map[string]*Param
}

// NewParameters creates an empty parameter set.
func NewParameters() *Parameters {
	return &Parameters{items: make(map[string]*Param)}
}

func (ps *Parameters) add(p *Param) *Param {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, exists := ps.items[p.Key]; !exists {
		ps.order = append(ps.order, p.Key)
	}
	p.value = p.Default
	ps.items[p.Key] = p
	return p
}

// AddInt declares an integer parameter bounded by [lo, hi].
func (ps *Parameters) AddInt(key, label string, def, lo, hi int) *Param {
	return ps.add(&Param{Key: key, Label: label, Kind: KindInt, Default: def, Min: float64(lo), Max: float64(hi), Bounded: true})
}

// AddFloat declares a float parameter bounded by [lo, hi].
func (ps *Parameters) AddFloat(key, label string, def, lo, hi float64) *Param {
	return ps.add(&Param{Key: key, Label: label, Kind: KindFloat, Default: def, Min: lo, Max: hi, Bounded: true})
}

// AddBool declares a boolean parameter.
func (ps *Parameters) AddBool(key, label string, def bool) *Param {
	return ps.add(&Param{Key: key, Label: label, Kind: KindBool, Default: def})
}

// AddString declares a free text parameter.
func (ps *Parameters) AddString(key, label, def string) *Param {
	return ps.add(&Param{Key: key, Label: label, Kind: KindString, Default: def})
}

// AddChoice declares a parameter restricted to choices.
func (ps *Parameters) AddChoice(key, label, def string, choices ...string) *Param {
	return ps.add(&Param{Key: key, Label: label, Kind: KindChoice, Default: def, Choices: choices})
}

// Keys returns parameter keys in declaration order.
func (ps *Parameters) Keys() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return slices.Clone(ps.order)
}

// Get returns a copy of the parameter under key.
func (ps *Parameters) Get(key string) (Param, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.items[key]
	if !ok {
		return Param{}, false
	}
	return *p, true
}

// Set converts raw to the parameter kind and stores it. Numeric values outside
// the declared range are stored as given; readers clamp them with IntInRange
// or FloatInRange.
func (ps *Parameters) Set(key string, raw any) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.items[key]
	if !ok {
		return divaerrors.NewValidationError("params."+key, "unknown parameter", nil)
	}
	var (
		v   any
		err error
	)
	switch p.Kind {
	case KindInt:
		v, err = cast.ToIntE(raw)
	case KindFloat:
		v, err = cast.ToFloat64E(raw)
	case KindBool:
		v, err = cast.ToBoolE(raw)
	case KindChoice:
		var s string
		s, err = cast.ToStringE(raw)
		if err == nil && !slices.Contains(p.Choices, s) {
			err = fmt.Errorf("%q is not one of %s", s, strings.Join(p.Choices, ", "))
		}
		v = s
	default:
		v, err = cast.ToStringE(raw)
	}
	if err != nil {
		return divaerrors.NewValidationError("params."+key, fmt.Sprintf("invalid %s value %v", p.Kind, raw), err)
	}
	p.value = v
	return nil
}

// Apply sets every value in values, stopping at the first error.
func (ps *Parameters) Apply(values map[string]any) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if err := ps.Set(key, values[key]); err != nil {
			return err
		}
	}
	return nil
}

// Int returns the raw integer value of key.
func (ps *Parameters) Int(key string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if p, ok := ps.items[key]; ok {
		return cast.ToInt(p.value)
	}
	return 0
}

// Float returns the raw float value of key.
func (ps *Parameters) Float(key string) float64 {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if p, ok := ps.items[key]; ok {
		return cast.ToFloat64(p.value)
	}
	return 0
}

// Bool returns the boolean value of key.
func (ps *Parameters) Bool(key string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if p, ok := ps.items[key]; ok {
		return cast.ToBool(p.value)
	}
	return false
}

// Text returns the string value of key.
func (ps *Parameters) Text(key string) string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if p, ok := ps.items[key]; ok {
		return cast.ToString(p.value)
	}
	return ""
}

// IntInRange returns the value of key, or its default with a warning when the
// value lies outside the declared range.
func (ps *Parameters) IntInRange(ctx context.Context, log ports.Logger, key string) int {
	p, ok := ps.Get(key)
	if !ok {
		return 0
	}
	if p.InRange() {
		return cast.ToInt(p.value)
	}
	warnOutOfRange(ctx, log, p)
	return cast.ToInt(p.Default)
}

// FloatInRange is IntInRange for float parameters.
func (ps *Parameters) FloatInRange(ctx context.Context, log ports.Logger, key string) float64 {
	p, ok := ps.Get(key)
	if !ok {
		return 0
	}
	if p.InRange() {
		return cast.ToFloat64(p.value)
	}
	warnOutOfRange(ctx, log, p)
	return cast.ToFloat64(p.Default)
}

func warnOutOfRange(ctx context.Context, log ports.Logger, p Param) {
	if log == nil {
		return
	}
	log.Warn(ctx, "parameter out of range, using default",
		"param", p.Key, "value", p.value, "min", p.Min, "max", p.Max, "default", p.Default)
}

// Values returns a snapshot of all current values.
func (ps *Parameters) Values() map[string]any {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make(map[string]any, len(ps.items))
	for key, p := range ps.items {
		out[key] = p.value
	}
	return out
}

// Fingerprint hashes the current values in declaration order. Persisted
// outputs are only restored when the stored fingerprint matches.
func (ps *Parameters) Fingerprint() string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	h := sha256.New()
	for _, key := range ps.order {
		fmt.Fprintf(h, "%s=%s\n", key, cast.ToString(ps.items[key].value))
	}
	return hex.EncodeToString(h.Sum(nil))
}
