/*
Package errors implements custom error interfaces for the escrow ledger.

Every error returned to a caller should wrap one of the root errors declared
in this package (or registered by an extension using Register). Root errors
carry a code that is stable across releases so that clients can distinguish
failures without parsing messages.

Create errors at the point of failure using ErrXyz.New("...") or
errors.Wrap(err, "...") so that a stacktrace is attached. Wrapping many times
records the stacktrace only once, at the innermost wrap.

Once you have an error, you can use fmt.Printf/Sprintf to get more context
	%s is just the error message
	%+v is the full stack trace
	%v appends a compressed [filename:line] where the error was created
*/
package errors
