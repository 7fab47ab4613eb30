package stage

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-flow/common"
	"github.com/go-gl/mathgl/mgl32"
)

// ParamKind identifies the type of a stage parameter.
type ParamKind int

const (
	// ParamFloat is a float32 parameter, optionally clamped to [Min, Max].
	ParamFloat ParamKind = iota
	// ParamInt is an int parameter, optionally clamped to [Min, Max].
	ParamInt
	// ParamBool is an on/off toggle, e.g. an effect's enabled flag.
	ParamBool
	// ParamVec3 is a three-component vector, e.g. a drift direction or tint color.
	ParamVec3
)

func (k ParamKind) String() string {
	switch k {
	case ParamFloat:
		return "float"
	case ParamInt:
		return "int"
	case ParamBool:
		return "bool"
	case ParamVec3:
		return "vec3"
	default:
		return "unknown"
	}
}

// ParamSpec describes a declared parameter. When Min < Max, numeric writes are clamped to the range.
type ParamSpec struct {
	Name string
	Kind ParamKind
	Min  float32
	Max  float32
}

// Value holds one parameter value. Only the field matching Kind is meaningful.
type Value struct {
	Kind  ParamKind
	Float float32
	Int   int
	Bool  bool
	Vec3  mgl32.Vec3
}

type param struct {
	spec  ParamSpec
	value Value
}

// Params is a stage's typed, named parameter registry. An external control layer such as a debug panel
// mutates values through the Set* accessors at any time; the change is picked up by the next evaluation.
// Safe for concurrent use.
type Params struct {
	mu     sync.RWMutex
	order  []string
	params map[string]*param
}

// NewParams returns an empty registry.
func NewParams() *Params {
	return &Params{params: make(map[string]*param)}
}

func (p *Params) define(spec ParamSpec, v Value) *Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.params[spec.Name]; !ok {
		p.order = append(p.order, spec.Name)
	}
	v.Kind = spec.Kind
	p.params[spec.Name] = &param{spec: spec, value: clampValue(spec, v)}
	return p
}

// DefineFloat declares a float parameter. Pass min == max for an unbounded value.
//
// Parameters:
//   - name: the parameter name
//   - def: the default value
//   - min: lower clamp bound
//   - max: upper clamp bound
//
// Returns:
//   - *Params: the registry, for chaining
func (p *Params) DefineFloat(name string, def, min, max float32) *Params {
	return p.define(ParamSpec{Name: name, Kind: ParamFloat, Min: min, Max: max}, Value{Float: def})
}

// DefineInt declares an int parameter. Pass min == max for an unbounded value.
func (p *Params) DefineInt(name string, def, min, max int) *Params {
	return p.define(ParamSpec{Name: name, Kind: ParamInt, Min: float32(min), Max: float32(max)}, Value{Int: def})
}

// DefineBool declares a bool parameter.
func (p *Params) DefineBool(name string, def bool) *Params {
	return p.define(ParamSpec{Name: name, Kind: ParamBool}, Value{Bool: def})
}

// DefineVec3 declares a vector parameter. Pass min == max for unbounded components.
func (p *Params) DefineVec3(name string, def mgl32.Vec3, min, max float32) *Params {
	return p.define(ParamSpec{Name: name, Kind: ParamVec3, Min: min, Max: max}, Value{Vec3: def})
}

// Names returns the declared parameter names in declaration order.
func (p *Params) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Spec returns the declaration of a parameter.
//
// Parameters:
//   - name: the parameter name
//
// Returns:
//   - ParamSpec: the declaration
//   - bool: false if the parameter is not declared
func (p *Params) Spec(name string) (ParamSpec, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pp, ok := p.params[name]
	if !ok {
		return ParamSpec{}, false
	}
	return pp.spec, true
}

// Get returns the current value of a parameter.
//
// Parameters:
//   - name: the parameter name
//
// Returns:
//   - Value: the current value
//   - error: common.ErrUnknownParameter if the name is not declared
func (p *Params) Get(name string) (Value, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pp, ok := p.params[name]
	if !ok {
		return Value{}, fmt.Errorf("get %q: %w", name, common.ErrUnknownParameter)
	}
	return pp.value, nil
}

func (p *Params) set(name string, kind ParamKind, v Value) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pp, ok := p.params[name]
	if !ok {
		return fmt.Errorf("set %q: %w", name, common.ErrUnknownParameter)
	}
	if pp.spec.Kind != kind {
		return fmt.Errorf("set %q as %s, declared %s: %w", name, kind, pp.spec.Kind, common.ErrParameterType)
	}
	v.Kind = kind
	pp.value = clampValue(pp.spec, v)
	return nil
}

// SetFloat writes a float parameter, clamping it to the declared range.
func (p *Params) SetFloat(name string, v float32) error {
	return p.set(name, ParamFloat, Value{Float: v})
}

// SetInt writes an int parameter, clamping it to the declared range.
func (p *Params) SetInt(name string, v int) error {
	return p.set(name, ParamInt, Value{Int: v})
}

// SetBool writes a bool parameter.
func (p *Params) SetBool(name string, v bool) error {
	return p.set(name, ParamBool, Value{Bool: v})
}

// SetVec3 writes a vector parameter, clamping each component to the declared range.
func (p *Params) SetVec3(name string, v mgl32.Vec3) error {
	return p.set(name, ParamVec3, Value{Vec3: v})
}

// Set writes a parameter from a loosely typed value, as decoded from a config file.
// Numeric values are converted to the declared kind.
//
// Parameters:
//   - name: the parameter name
//   - v: float32, float64, int, int64, bool, mgl32.Vec3 or a 3-element []float64 / []any
//
// Returns:
//   - error: common.ErrUnknownParameter or common.ErrParameterType
func (p *Params) Set(name string, v any) error {
	spec, ok := p.Spec(name)
	if !ok {
		return fmt.Errorf("set %q: %w", name, common.ErrUnknownParameter)
	}
	switch spec.Kind {
	case ParamFloat:
		f, ok := toFloat(v)
		if !ok {
			break
		}
		return p.SetFloat(name, f)
	case ParamInt:
		f, ok := toFloat(v)
		if !ok {
			break
		}
		return p.SetInt(name, int(f))
	case ParamBool:
		b, ok := v.(bool)
		if !ok {
			break
		}
		return p.SetBool(name, b)
	case ParamVec3:
		vec, ok := toVec3(v)
		if !ok {
			break
		}
		return p.SetVec3(name, vec)
	}
	return fmt.Errorf("set %q from %T, declared %s: %w", name, v, spec.Kind, common.ErrParameterType)
}

// Snapshot copies the current values so an evaluation sees one consistent parameter set.
func (p *Params) Snapshot() Values {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m := make(map[string]Value, len(p.params))
	for name, pp := range p.params {
		m[name] = pp.value
	}
	return Values{m: m}
}

func clampValue(spec ParamSpec, v Value) Value {
	if spec.Min >= spec.Max {
		return v
	}
	switch spec.Kind {
	case ParamFloat:
		v.Float = common.Clamp(v.Float, spec.Min, spec.Max)
	case ParamInt:
		v.Int = int(common.Clamp(float32(v.Int), spec.Min, spec.Max))
	case ParamVec3:
		for i := range v.Vec3 {
			v.Vec3[i] = common.Clamp(v.Vec3[i], spec.Min, spec.Max)
		}
	}
	return v
}

func toFloat(v any) (float32, bool) {
	switch n := v.(type) {
	case float32:
		return n, true
	case float64:
		return float32(n), true
	case int:
		return float32(n), true
	case int64:
		return float32(n), true
	default:
		return 0, false
	}
}

func toVec3(v any) (mgl32.Vec3, bool) {
	switch vec := v.(type) {
	case mgl32.Vec3:
		return vec, true
	case []float64:
		if len(vec) == 3 {
			return mgl32.Vec3{float32(vec[0]), float32(vec[1]), float32(vec[2])}, true
		}
	case []any:
		if len(vec) != 3 {
			return mgl32.Vec3{}, false
		}
		var out mgl32.Vec3
		for i, c := range vec {
			f, ok := toFloat(c)
			if !ok {
				return mgl32.Vec3{}, false
			}
			out[i] = f
		}
		return out, true
	}
	return mgl32.Vec3{}, false
}

// Values is an immutable snapshot of a parameter set taken at the start of an evaluation.
// Reads of undeclared names return the zero value.
type Values struct {
	m map[string]Value
}

// Has reports whether name was declared when the snapshot was taken.
func (v Values) Has(name string) bool {
	_, ok := v.m[name]
	return ok
}

// Float returns a float parameter.
func (v Values) Float(name string) float32 {
	return v.m[name].Float
}

// Int returns an int parameter.
func (v Values) Int(name string) int {
	return v.m[name].Int
}

// Bool returns a bool parameter.
func (v Values) Bool(name string) bool {
	return v.m[name].Bool
}

// Vec3 returns a vector parameter.
func (v Values) Vec3(name string) mgl32.Vec3 {
	return v.m[name].Vec3
}
