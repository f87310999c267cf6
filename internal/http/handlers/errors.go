package handlers

// Error names carried in error.name. Clients branch on these, so they are
// stable; messages are for humans.
const (
	ErrNameValidation       = "ValidationError"
	ErrNameBadRequest       = "BadRequestError"
	ErrNameNotFound         = "NotFoundError"
	ErrNameMethodNotAllowed = "MethodNotAllowedError"
	ErrNameTooManyRequests  = "TooManyRequests"
	ErrNameInternal         = "InternalServerError"
)

// User-facing messages of the contact endpoint.
const (
	MsgInvalidBody          = "Invalid request body"
	MsgVerificationRequired = "Verification required"
	MsgVerificationFailed   = "Verification failed"
	MsgInvalidSubmission    = "Invalid submission"
	MsgInternal             = "Internal Server Error"
)
