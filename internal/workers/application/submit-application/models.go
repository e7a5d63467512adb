// internal/workers/application/submit-application/models.go
package submitapplication

import (
	"fmt"

	apperrors "guild-intake/internal/common/errors"
)

// Embed field names of the summary message, in display order.
const (
	FieldClass    = "Class"
	FieldSpec     = "Spec"
	FieldCovenant = "Covenant"
)

// PostError reports how far posting got before a message was refused.
// Messages already posted stay in the channel.
type PostError struct {
	Posted int
	Total  int
	Err    error
}

func (e *PostError) Error() string {
	return fmt.Sprintf("posted %d of %d messages: %v", e.Posted, e.Total, e.Err)
}

// Unwrap exposes the POST_FAILED StandardError so the relay reports the
// right code.
func (e *PostError) Unwrap() error {
	return apperrors.NewPostFailedError(e.Posted, e.Total, e.Err)
}
