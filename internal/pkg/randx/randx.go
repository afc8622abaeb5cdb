/*
Package randx provides functions for generating unique identifiers.

It is primarily used to generate standard UUID message IDs for packets the
server forwards to recipients.
*/
package randx

import "github.com/google/uuid"

// MessageID generates a standard UUID v4 string to serve as a unique identifier for a message.
func MessageID() string {
	return uuid.New().String()
}
