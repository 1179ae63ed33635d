// Package corelib registers the standard library surface against the
// program definition table: the fixed error class taxonomy and the
// built-in functions the VM and scheduler exercise.
package corelib

import "github.com/ternarybob/canter/pkg/bytecode"

// Standard error class ids. These are stable because the classes are
// registered before anything else, in this order, with Error as the
// common base of every other entry.
const (
	StdErrorError int64 = iota
	StdErrorRuntimeError
	StdErrorOutOfMemoryError
	StdErrorOSError
	StdErrorIOError
	StdErrorPermissionError
	StdErrorArgumentError
	StdErrorTypeError
	StdErrorValueError
	StdErrorAttributeError
	StdErrorIndexError
	StdErrorMathError
	StdErrorOverflowError
	StdErrorInvalidDestructorError
	StdErrorInvalidNoasyncResourceError
	StdErrorEncodingError
	StdErrorAssertionError
	StdErrorTotalCount
)

// StdErrorClassNames lists the taxonomy in registration order.
var StdErrorClassNames = []string{
	"Error",
	"RuntimeError",
	"OutOfMemoryError",
	"OSError",
	"IOError",
	"PermissionError",
	"ArgumentError",
	"TypeError",
	"ValueError",
	"AttributeError",
	"IndexError",
	"MathError",
	"OverflowError",
	"InvalidDestructorError",
	"InvalidNoasyncResourceError",
	"EncodingError",
	"AssertionError",
}

// RegisterErrorClasses registers the standard error classes first so
// their ids are stable, with every class except Error itself deriving
// from Error.
func RegisterErrorClasses(p *bytecode.Program) {
	for i, name := range StdErrorClassNames {
		base := int64(-1)
		if i > 0 {
			base = StdErrorError
		}
		id := p.AddClass(name, base, true)
		if id != int64(i) {
			panic("standard error classes must be registered first")
		}
		p.InternAttributeName("message")
	}
}
