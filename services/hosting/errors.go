package hosting

import "errors"

var (
	// repository errors
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// infrastructure faults, fatal for the request
	ErrDatabase = errors.New("database error")
	ErrStorage  = errors.New("storage error")

	ErrUnknownAction = errors.New("unknown admin action")
)
