package chunk

import "errors"

var (
	// ErrInvalidConfig は設定が不正な場合に返されます
	ErrInvalidConfig = errors.New("invalid chunker config")
)
