package exitcode

// Exit codes for webchat commands
const (
	Error     = 1
	Cancelled = 130 // 128 + SIGINT
)

// ExitError is an error that carries a specific exit code
type ExitError struct {
	Code    int
	Message string
}

func (e ExitError) Error() string {
	return e.Message
}

// Cancel returns the error used when the user interrupts a command.
func Cancel() ExitError {
	return ExitError{Code: Cancelled, Message: "cancelled"}
}
