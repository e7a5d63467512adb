package errors

// Logger is the subset of logger.Logger the handler needs; declared here to
// keep this package free of internal imports.
type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler turns handler failures into the code/message pair that is
// written back across the relay, logging each one once.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleCommandError normalizes err, logs it with the command and request
// id, and returns what the caller should see.
func (h *ErrorHandler) HandleCommandError(command, requestID string, err error) *StandardError {
	stdErr := Normalize(err)
	h.logError(command, requestID, stdErr)
	return stdErr
}

func (h *ErrorHandler) logError(command, requestID string, stdErr *StandardError) {
	fields := map[string]interface{}{
		"command":       command,
		"requestId":     requestID,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	for k, v := range stdErr.Metadata {
		fields[k] = v
	}
	h.logger.Error("command failed", fields)
}
