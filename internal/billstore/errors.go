package billstore

import "errors"

var (
	ErrBillNotFound      = errors.New("bill not found")
	ErrBillExists        = errors.New("bill already exists")
	ErrBillClosed        = errors.New("bill is closed")
	ErrMalformedBill     = errors.New("malformed bill document")
	ErrTooMuchContention = errors.New("bill changed too often to apply the write")
)
