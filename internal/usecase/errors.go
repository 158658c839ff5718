package usecase

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrJobTerminal  = errors.New("job is already terminal")
)
