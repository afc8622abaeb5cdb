/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: Protocol and Request Handling Errors
const (
	// ErrUnknownCommand indicates the client sent a command the server does not recognize.
	ErrUnknownCommand = 1001

	// ErrMessageTooLong indicates the message body exceeded the maximum length limit.
	ErrMessageTooLong = 1002

	// ErrRecipientRequired indicates a MESSAGE_INDIVIDUAL packet arrived without a recipient.
	ErrRecipientRequired = 1003

	// ErrRateLimitExceeded indicates the connection rate from one address exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Room Business Logic Errors
const (
	// ErrRoomNameInvalid indicates an empty or malformed room name.
	ErrRoomNameInvalid = 2101
)

// 3xxx: User and Session Errors
const (
	// ErrInvalidUser indicates a registration attempt with an empty nickname or password.
	ErrInvalidUser = 3001

	// ErrUserNotFound indicates a login attempt with no matching stored user.
	ErrUserNotFound = 3002

	// ErrNicknameTaken indicates a registration attempt with an already registered
	// nickname while the duplicate policy is set to reject.
	ErrNicknameTaken = 3003

	// ErrNotAuthenticated indicates a messaging command on a session that has not logged in.
	ErrNotAuthenticated = 3004

	// ErrServerFull indicates the concurrent session cap has been reached.
	ErrServerFull = 3005
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
