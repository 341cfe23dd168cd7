package config

import (
	"errors"
	"fmt"
)

// FieldError 提供字段路径与错误原因，便于 CLI 向用户反馈。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// AsFieldError 从（可能被包装的）错误中取出 FieldError。
func AsFieldError(err error) (FieldError, bool) {
	var fieldErr FieldError
	if errors.As(err, &fieldErr) {
		return fieldErr, true
	}
	return FieldError{}, false
}
