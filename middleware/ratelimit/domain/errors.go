package domain

import "errors"

var (
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
	ErrInvalidTier   = errors.New("invalid rate limit tier")
)
