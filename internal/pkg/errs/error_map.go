/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
wire replies and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
// The messages for authentication and dispatch failures double as the literal reply bodies
// observed by chat clients.
var errorMap = map[int]CustomError{
	// 1xxx: Protocol and Request Handling Errors
	ErrUnknownCommand:    {Code: ErrUnknownCommand, Message: "Invalid command"},
	ErrMessageTooLong:    {Code: ErrMessageTooLong, Message: "Message is too long."},
	ErrRecipientRequired: {Code: ErrRecipientRequired, Message: "A recipient is required."},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many connection attempts. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Room Business Logic Errors
	ErrRoomNameInvalid: {Code: ErrRoomNameInvalid, Message: "A room name is required."},

	// 3xxx: User and Session Errors
	ErrInvalidUser:      {Code: ErrInvalidUser, Message: "User not registered"},
	ErrUserNotFound:     {Code: ErrUserNotFound, Message: "User not found"},
	ErrNicknameTaken:    {Code: ErrNicknameTaken, Message: "Nickname is already taken."},
	ErrNotAuthenticated: {Code: ErrNotAuthenticated, Message: "Please sign in first."},
	ErrServerFull:       {Code: ErrServerFull, Message: "Server is full. Please try again later.", Status: http.StatusServiceUnavailable},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
