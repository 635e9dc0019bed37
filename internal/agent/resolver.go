package agent

import (
	"fmt"

	"github.com/Iron-Ham/contendwatch/internal/errors"
	"github.com/Iron-Ham/contendwatch/internal/logging"
	"github.com/Iron-Ham/contendwatch/internal/vm"
)

// Resolver locates the target thread by name and reads the monitor object
// out of one of its fields.
type Resolver struct {
	rt             vm.Runtime
	threadName     string
	fieldName      string
	fieldSignature string
	logger         *logging.Logger
}

// NewResolver creates a Resolver for the named thread and field.
func NewResolver(rt vm.Runtime, threadName, fieldName, fieldSignature string, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Resolver{
		rt:             rt,
		threadName:     threadName,
		fieldName:      fieldName,
		fieldSignature: fieldSignature,
		logger:         logger,
	}
}

// Resolve enumerates the live threads, finds the one named like the target
// and promotes it and its monitor field to global references.
//
// The enumeration buffer is returned to the runtime on every path.
func (r *Resolver) Resolve() (target *Target, err error) {
	list, err := r.rt.AllThreads()
	if err != nil {
		return nil, r.fail(errors.ErrRuntime, "enumerate threads").WithCause(err)
	}
	defer func() {
		if derr := r.rt.Deallocate(list); derr != nil && err == nil {
			target = nil
			err = r.fail(errors.ErrRuntime, "release thread list").WithCause(derr)
		}
	}()

	if list.Count == 0 || list.Threads == nil || len(list.Threads) < list.Count {
		return nil, r.fail(errors.ErrInconsistentState, "malformed thread list").
			WithObserved("count", list.Count).
			WithObserved("handles", len(list.Threads))
	}

	r.logger.Debug("threads enumerated", "count", list.Count)

	var match vm.Ref
	for i := 0; i < list.Count; i++ {
		info, err := r.rt.ThreadInfo(list.Threads[i])
		if err != nil {
			return nil, r.fail(errors.ErrRuntime, fmt.Sprintf("thread info #%d", i)).WithCause(err)
		}
		r.logger.Debug("thread", "index", i, "name", info.Name, "daemon", info.Daemon)
		if match == nil && info.Name == r.threadName {
			match = list.Threads[i]
		}
	}
	if match == nil {
		return nil, r.fail(errors.ErrNotFound, "no live thread with expected name").
			WithObserved("thread_name", r.threadName).
			WithObserved("threads", list.Count)
	}

	thread, err := r.rt.NewGlobalRef(match)
	if err != nil {
		return nil, r.fail(errors.ErrRuntime, "promote thread").WithCause(err)
	}

	object, err := r.readField(thread)
	if err != nil {
		_ = r.rt.DeleteGlobalRef(thread)
		return nil, err
	}

	r.logger.Info("target resolved",
		"thread_name", r.threadName,
		"field", r.fieldName,
	)
	return &Target{
		Thread:     thread,
		Object:     object,
		ThreadName: r.threadName,
		FieldName:  r.fieldName,
		Listed:     list.Count,
	}, nil
}

// readField reads the monitor field off thread and promotes the value.
func (r *Resolver) readField(thread vm.Ref) (vm.Ref, error) {
	class, err := r.rt.GetObjectClass(thread)
	if err != nil {
		return nil, r.fail(errors.ErrFieldAccess, "get thread class").WithCause(err)
	}
	field, err := r.rt.GetFieldID(class, r.fieldName, r.fieldSignature)
	if err != nil {
		return nil, r.fail(errors.ErrFieldAccess, "get field id").
			WithObserved("field", r.fieldName).
			WithObserved("signature", r.fieldSignature).
			WithCause(err)
	}
	value, err := r.rt.GetObjectField(thread, field)
	if err != nil {
		return nil, r.fail(errors.ErrFieldAccess, "read field").
			WithObserved("field", r.fieldName).
			WithCause(err)
	}
	if value == nil {
		return nil, r.fail(errors.ErrNullField, "monitor field holds no object").
			WithObserved("field", r.fieldName)
	}

	object, err := r.rt.NewGlobalRef(value)
	if err != nil {
		return nil, r.fail(errors.ErrRuntime, "promote monitor object").WithCause(err)
	}
	return object, nil
}

// Release deletes the global references held by t.
func (r *Resolver) Release(t *Target) error {
	if t == nil {
		return nil
	}
	var errs []error
	for _, ref := range []vm.Ref{t.Thread, t.Object} {
		if ref == nil {
			continue
		}
		if err := r.rt.DeleteGlobalRef(ref); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Resolver) fail(kind error, msg string) *errors.HarnessError {
	return errors.NewHarnessError(kind, msg).WithPhase(PhaseScenarioRunning.String())
}
