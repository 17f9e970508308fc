package vectorindex

import "errors"

var (
	// ErrSizeMismatch はベクトルの次元数がコレクションの次元数と一致しない場合に返されます
	ErrSizeMismatch = errors.New("vector size mismatch")

	// ErrEmptyBatch は空のバッチが渡された場合に返されます
	ErrEmptyBatch = errors.New("empty point batch")

	// ErrInvalidCollectionName はコレクション名が不正な場合に返されます
	ErrInvalidCollectionName = errors.New("invalid collection name")
)
