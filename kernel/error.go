package kernel

// Error describes an error raised by one of the kernel subsystems. Errors are
// defined as global variables that are pointers to the Error structure so that
// raising one never allocates.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
