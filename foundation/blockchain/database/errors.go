package database

import "errors"

// Set of error variables used to classify why data was rejected. Callers
// match them with errors.Is.
var (
	ErrEncoding   = errors.New("encoding failure")
	ErrStructural = errors.New("malformed data")
	ErrValidation = errors.New("validation failure")
	ErrLinkage    = errors.New("block does not link")
)
