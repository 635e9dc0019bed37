package sim

import (
	"fmt"
	"sync/atomic"

	"github.com/Iron-Ham/contendwatch/internal/vm"
)

// Class describes a type of simulated object.
type Class struct {
	name   string
	super  *Class
	fields map[string]string // field name -> signature
}

// NewClass creates a class with the given instance fields (name -> signature).
func NewClass(name string, super *Class, fields map[string]string) *Class {
	c := &Class{name: name, super: super, fields: make(map[string]string, len(fields))}
	for k, v := range fields {
		c.fields[k] = v
	}
	return c
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

func (c *Class) lookup(name, signature string) bool {
	for k := c; k != nil; k = k.super {
		if sig, ok := k.fields[name]; ok && sig == signature {
			return true
		}
	}
	return false
}

// Object is a simulated heap object. Every object carries a monitor.
type Object struct {
	id      uint64
	class   *Class
	rt      *Runtime
	fields  map[string]*Object
	monitor *Monitor
}

// NewObject allocates an object of class c.
func (r *Runtime) NewObject(c *Class) *Object {
	o := &Object{
		id:     r.nextID.Add(1),
		class:  c,
		rt:     r,
		fields: make(map[string]*Object),
	}
	o.monitor = newMonitor(o)
	return o
}

// Class returns the object's class.
func (o *Object) Class() *Class { return o.class }

// Monitor returns the object's monitor.
func (o *Object) Monitor() *Monitor { return o.monitor }

// String identifies the object for diagnostics.
func (o *Object) String() string {
	return fmt.Sprintf("%s@%d", o.class.name, o.id)
}

// SetField stores value in the named field. The field must be declared by
// the object's class or one of its superclasses.
func (o *Object) SetField(name string, value *Object) error {
	o.rt.mu.Lock()
	defer o.rt.mu.Unlock()

	found := false
	for k := o.class; k != nil; k = k.super {
		if _, ok := k.fields[name]; ok {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s.%s", vm.ErrNoSuchField, o.class.name, name)
	}
	o.fields[name] = value
	return nil
}

// handle is the simulated vm.Ref. Each runtime call mints a new handle, so
// two handles to one object are never == to each other.
type handle struct {
	obj      *Object
	scope    vm.RefScope
	released atomic.Bool
}

func newHandle(obj *Object, scope vm.RefScope) *handle {
	return &handle{obj: obj, scope: scope}
}

func (h *handle) Scope() vm.RefScope { return h.scope }

func (h *handle) release() { h.released.Store(true) }

func (h *handle) valid() bool { return h != nil && !h.released.Load() }

// classRef is a handle to a class.
type classRef struct {
	class *Class
}

func (c *classRef) Scope() vm.RefScope { return vm.Local }

type fieldID struct {
	class     *Class
	name      string
	signature string
}

func (f *fieldID) Name() string      { return f.name }
func (f *fieldID) Signature() string { return f.signature }

// resolve returns the live object behind ref.
func resolve(ref vm.Ref) (*Object, error) {
	h, ok := ref.(*handle)
	if !ok || !h.valid() {
		return nil, vm.ErrInvalidObject
	}
	return h.obj, nil
}

// local mints a local handle that lives until the agent frame is popped.
func (r *Runtime) local(obj *Object) *handle {
	h := newHandle(obj, vm.Local)
	r.mu.Lock()
	r.frameLocals = append(r.frameLocals, h)
	r.mu.Unlock()
	return h
}

// popFrame releases every local handle minted for the agent thread.
func (r *Runtime) popFrame() {
	r.mu.Lock()
	locals := r.frameLocals
	r.frameLocals = nil
	r.mu.Unlock()
	for _, h := range locals {
		h.release()
	}
}

// GetObjectClass returns a handle to the class of object.
func (r *Runtime) GetObjectClass(object vm.Ref) (vm.Ref, error) {
	obj, err := resolve(object)
	if err != nil {
		return nil, err
	}
	return &classRef{class: obj.class}, nil
}

// GetFieldID looks up an instance field by name and signature.
func (r *Runtime) GetFieldID(class vm.Ref, name, signature string) (vm.FieldID, error) {
	c, ok := class.(*classRef)
	if !ok || c == nil || c.class == nil {
		return nil, vm.ErrInvalidClass
	}
	if !c.class.lookup(name, signature) {
		return nil, fmt.Errorf("%w: %s.%s %s", vm.ErrNoSuchField, c.class.name, name, signature)
	}
	return &fieldID{class: c.class, name: name, signature: signature}, nil
}

// GetObjectField reads a reference field. A field holding no value yields
// a nil Ref and no error.
func (r *Runtime) GetObjectField(object vm.Ref, field vm.FieldID) (vm.Ref, error) {
	obj, err := resolve(object)
	if err != nil {
		return nil, err
	}
	f, ok := field.(*fieldID)
	if !ok || f == nil {
		return nil, vm.ErrIllegalArgument
	}

	r.mu.Lock()
	value := obj.fields[f.name]
	r.mu.Unlock()

	if value == nil {
		return nil, nil
	}
	return r.local(value), nil
}

// NewGlobalRef promotes ref to a handle that survives until DeleteGlobalRef.
func (r *Runtime) NewGlobalRef(ref vm.Ref) (vm.Ref, error) {
	if r.faults.NewGlobalRefErr != nil {
		return nil, r.faults.NewGlobalRefErr
	}
	obj, err := resolve(ref)
	if err != nil {
		return nil, err
	}
	h := newHandle(obj, vm.Global)

	r.mu.Lock()
	r.globals[h] = struct{}{}
	r.mu.Unlock()
	return h, nil
}

// DeleteGlobalRef releases a global handle.
func (r *Runtime) DeleteGlobalRef(ref vm.Ref) error {
	h, ok := ref.(*handle)
	if !ok || h.scope != vm.Global {
		return vm.ErrIllegalArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.globals[h]; !ok {
		return vm.ErrIllegalArgument
	}
	delete(r.globals, h)
	h.release()
	return nil
}

// GlobalRefs returns the number of live global handles.
func (r *Runtime) GlobalRefs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.globals)
}

// IsSameObject reports whether a and b denote the same entity. Two nil
// refs are the same; a released handle denotes nothing.
func (r *Runtime) IsSameObject(a, b vm.Ref) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ha, okA := a.(*handle)
	hb, okB := b.(*handle)
	if !okA || !okB || !ha.valid() || !hb.valid() {
		return false
	}
	return ha.obj == hb.obj
}

// Ref returns a fresh local handle to obj, as a runtime call site would.
func (r *Runtime) Ref(obj *Object) vm.Ref {
	return newHandle(obj, vm.Local)
}
