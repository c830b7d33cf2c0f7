// Package application holds the use cases the presentation layer drives.
package application

import "context"

// UseCase is a single command-style operation with typed input and result.
type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}
