package flows

import "errors"

// Client-facing error taxonomy. Everything else the flows can fail with is
// an internal error and surfaces as a 500 at the HTTP layer.
var (
	// ErrInvalidCredentials covers both unknown email and wrong password,
	// deliberately indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountNotUsable is returned when the password was right but the
	// account state forbids login.
	ErrAccountNotUsable = errors.New("account not usable")

	// ErrRateLimited is returned when any throttled step exceeds its
	// budget.
	ErrRateLimited = errors.New("too many attempts")

	// ErrMFASessionInvalid is returned when the temp login token is
	// unknown or expired; the client restarts from the password step.
	ErrMFASessionInvalid = errors.New("mfa session invalid")

	// ErrChallengeInvalid covers every MFA code verification failure:
	// unknown or expired challenge, wrong code, wrong user.
	ErrChallengeInvalid = errors.New("challenge invalid")
)
