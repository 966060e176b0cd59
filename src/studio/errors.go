package studio

import (
	"errors"
	"fmt"
)

// Local validation failures. No request is issued when one of these is returned.
var (
	ErrEmptyPrompt          = errors.New("prompt is empty")
	ErrFramesRequired       = errors.New("frames to video needs exactly 2 images: a start frame and an end frame")
	ErrReferencesRequired   = errors.New("references to video needs at least 1 reference image")
	ErrExtendTargetRequired = errors.New("extend video needs a video to extend; use extend on a generated video first")
	ErrModeUnsupported      = errors.New("selected model does not support this video mode")
	ErrUnknownMode          = errors.New("unknown mode")
	ErrStagingFull          = errors.New("no more attachments allowed in this mode")
	ErrUnsupportedMedia     = errors.New("unsupported media type")
	ErrMediaTooLarge        = errors.New("attachment too large")
	ErrNotExtendable        = errors.New("asset has no video handle to extend")
)

// Orchestration failures.
var (
	ErrBusy             = errors.New("a generation request is already in flight")
	ErrGenerationFailed = errors.New("generation request failed")
	ErrStaleResult      = errors.New("result belongs to a conversation that is no longer active")
	ErrNoPendingPlan    = errors.New("no plan is waiting for review")
)

// Plan model failures.
var (
	ErrInvalidPlan     = errors.New("invalid execution plan")
	ErrPlanState       = errors.New("operation not allowed in current plan state")
	ErrUnknownScene    = errors.New("unknown scene")
	ErrDependencyCycle = errors.New("scene dependencies form a cycle")
)

// ValidationError marks a request rejected before reaching the network.
type ValidationError struct {
	Mode    Mode
	SubMode VideoSubMode
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Mode == ModeVideo && e.SubMode != "" {
		return fmt.Sprintf("%s/%s: %v", e.Mode, e.SubMode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Mode, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err was produced by local validation.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
