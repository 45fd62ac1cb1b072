// internal/controllers/errors.go
package controllers

import "errors"

var (
	ErrControllerNotFound = errors.New("no controller registered for this backend")
	ErrClosed             = errors.New("controller closed")
)
