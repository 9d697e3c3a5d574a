package automod

import "errors"

// ErrConfiguration is returned for an unknown provider name, a missing credential, or other invalid configuration
var ErrConfiguration = errors.New("invalid moderation configuration")

// ErrProvider is returned when a scoring backend fails, responds with an error, or returns a payload which can not be interpreted
var ErrProvider = errors.New("moderation provider failed")
