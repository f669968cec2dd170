package api

// ErrorCode defines error types for API operations
type ErrorCode string

const (
	ErrInvalidPaperID  ErrorCode = "InvalidPaperID"
	ErrInvalidQuery    ErrorCode = "InvalidQuery"
	ErrPaperNotFound   ErrorCode = "PaperNotFound"
	ErrHTMLUnavailable ErrorCode = "HTMLUnavailable"
	// ErrUpstream represents errors reported by arxiv.org itself
	ErrUpstream ErrorCode = "UpstreamError"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}
