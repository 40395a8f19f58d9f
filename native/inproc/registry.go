package inproc

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/wippyai/tonbridge/errors"
)

// Module is the interface for struct-based function modules.
// All exported methods (except Namespace and Register) are registered as
// functions named "<namespace>.<snake_case_method>".
type Module interface {
	// Namespace returns the module name (e.g., "client", "crypto").
	Namespace() string
}

// ExplicitRegistrar allows modules to provide exact function names when
// automatic PascalCase-to-snake_case conversion doesn't apply.
type ExplicitRegistrar interface {
	Register() map[string]any
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	emitterType = reflect.TypeOf((*Emitter)(nil))
)

// Func is a registered engine function.
//
// Accepted shapes:
//
//	func(ctx context.Context) (R, error)
//	func(ctx context.Context, params P) (R, error)
//	func(ctx context.Context, params P, em *Emitter) (R, error)
//	func(ctx context.Context, em *Emitter) error
//
// Any of the above may return only error, in which case the result is {}.
type Func struct {
	handler reflect.Value
	param   reflect.Type
	Name    string
	emits   bool
	result  bool
}

// Streaming reports whether the function takes an Emitter and therefore
// can only be called asynchronously.
func (f *Func) Streaming() bool {
	return f.emits
}

func newFunc(name string, fn reflect.Value) (*Func, error) {
	if fn.Kind() != reflect.Func {
		return nil, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
			Function(name).
			Detail("handler must be a function, got %s", fn.Type()).
			Build()
	}

	ft := fn.Type()
	if ft.IsVariadic() {
		return nil, errors.InvalidInput(errors.PhaseRegister, fmt.Sprintf("%s: variadic handlers are not supported", name))
	}
	if ft.NumIn() < 1 || ft.In(0) != contextType {
		return nil, errors.InvalidInput(errors.PhaseRegister, fmt.Sprintf("%s: first parameter must be context.Context", name))
	}

	f := &Func{Name: name, handler: fn}
	for i := 1; i < ft.NumIn(); i++ {
		in := ft.In(i)
		switch {
		case in == emitterType:
			if i != ft.NumIn()-1 {
				return nil, errors.InvalidInput(errors.PhaseRegister, fmt.Sprintf("%s: *Emitter must be the last parameter", name))
			}
			f.emits = true
		case i == 1:
			f.param = in
		default:
			return nil, errors.InvalidInput(errors.PhaseRegister, fmt.Sprintf("%s: unexpected parameter %d of type %s", name, i, in))
		}
	}

	switch ft.NumOut() {
	case 1:
		if ft.Out(0) != errorType {
			return nil, errors.InvalidInput(errors.PhaseRegister, fmt.Sprintf("%s: single result must be error", name))
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, errors.InvalidInput(errors.PhaseRegister, fmt.Sprintf("%s: second result must be error", name))
		}
		f.result = true
	default:
		return nil, errors.InvalidInput(errors.PhaseRegister, fmt.Sprintf("%s: handler must return (R, error) or error", name))
	}

	return f, nil
}

func (f *Func) call(ctx context.Context, params string, em *Emitter) (json.RawMessage, error) {
	args := []reflect.Value{reflect.ValueOf(ctx)}

	if f.param != nil {
		pv := reflect.New(f.param)
		if p := strings.TrimSpace(params); p != "" && p != "null" {
			if err := json.Unmarshal([]byte(p), pv.Interface()); err != nil {
				return nil, &ClientError{
					Code:    CodeInvalidParams,
					Message: fmt.Sprintf("Invalid parameters: %v", err),
				}
			}
		}
		args = append(args, pv.Elem())
	}
	if f.emits {
		args = append(args, reflect.ValueOf(em))
	}

	out := f.handler.Call(args)
	if errV := out[len(out)-1]; !errV.IsNil() {
		return nil, errV.Interface().(error)
	}
	if !f.result {
		return json.RawMessage("{}"), nil
	}

	data, err := json.Marshal(out[0].Interface())
	if err != nil {
		return nil, &ClientError{
			Code:    CodeCannotSerializeResult,
			Message: fmt.Sprintf("Can not serialize result: %v", err),
		}
	}
	return data, nil
}

// Registry maps "module.function" names to handlers.
type Registry struct {
	funcs map[string]*Func
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[string]*Func),
	}
}

// RegisterModule registers the functions of m under its namespace.
func (r *Registry) RegisterModule(m Module) error {
	ns := m.Namespace()
	if ns == "" {
		return errors.InvalidInput(errors.PhaseRegister, "namespace cannot be empty")
	}

	if er, ok := m.(ExplicitRegistrar); ok {
		for name, handler := range er.Register() {
			if err := r.RegisterFunc(ns+"."+name, handler); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(m)
	rt := rv.Type()

	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "Namespace" {
			continue
		}

		name := ns + "." + toSnakeCase(method.Name)
		f, err := newFunc(name, rv.Method(i))
		if err != nil {
			return errors.Registration(name, err)
		}
		r.put(f)
	}

	return nil
}

// RegisterFunc registers a single function under its full name.
func (r *Registry) RegisterFunc(name string, fn any) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseRegister, "function name cannot be empty")
	}
	if mod, fnName, ok := strings.Cut(name, "."); !ok || mod == "" || fnName == "" {
		return errors.InvalidInput(errors.PhaseRegister, fmt.Sprintf("function name %q must be module.function", name))
	}
	if fn == nil {
		return errors.InvalidInput(errors.PhaseRegister, fmt.Sprintf("%s: handler is nil", name))
	}

	f, err := newFunc(name, reflect.ValueOf(fn))
	if err != nil {
		return errors.Registration(name, err)
	}
	r.put(f)
	return nil
}

func (r *Registry) put(f *Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[f.Name] = f
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (*Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.funcs[name]
	return f, ok
}

// Modules returns the registered function names grouped by module, sorted.
func (r *Registry) Modules() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mods := make(map[string][]string)
	for name := range r.funcs {
		mod, fn, _ := strings.Cut(name, ".")
		mods[mod] = append(mods[mod], fn)
	}
	for _, fns := range mods {
		sort.Strings(fns)
	}
	return mods
}

// toSnakeCase converts PascalCase to snake_case.
// Handles acronyms: GetAPIReference -> get_api_reference
func toSnakeCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if unicode.IsUpper(r) {
			acronymEnd := i + 1
			for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
				acronymEnd++
			}

			if acronymEnd > i+1 {
				// Last uppercase before lowercase starts next word, not part of acronym
				if acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
					acronymEnd--
				}
			}

			if i > 0 {
				result.WriteByte('_')
			}

			for j := i; j < acronymEnd; j++ {
				result.WriteRune(unicode.ToLower(runes[j]))
			}
			i = acronymEnd - 1
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
