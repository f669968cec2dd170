package cli

// ErrorCode defines error types for CLI operations
type ErrorCode string

const (
	InvalidArguments ErrorCode = "InvalidArguments"
	InvalidFlagValue ErrorCode = "InvalidFlagValue"
	RenderFailed     ErrorCode = "RenderFailed"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}
