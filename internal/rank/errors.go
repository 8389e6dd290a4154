package rank

import "errors"

var (
	// ErrUnsupportedMethod indicates a method outside the supported set.
	ErrUnsupportedMethod = errors.New("unsupported ranking method")

	// ErrInvalidReference indicates a reference group that is not one of
	// the label categories.
	ErrInvalidReference = errors.New("reference is not a valid group")

	// ErrSingleGroup indicates logistic regression was requested with
	// fewer than two groups.
	ErrSingleGroup = errors.New("cannot perform logistic regression on a single group")
)
