package domain

import "errors"

var (
	ErrTileNotFound           = errors.New("tile not found")
	ErrTemporarilyUnavailable = errors.New("temporarily unavailable")
	ErrDecodeFailed           = errors.New("failed to decode tile")
	ErrInvalidTile            = errors.New("invalid tile")
	ErrInvalidArgument        = errors.New("invalid argument")
)
