package search

import "errors"

var (
	// ErrEmptyFrontier is returned by Pop and PeekWeight on an empty frontier.
	ErrEmptyFrontier = errors.New("search: frontier is empty")

	// ErrSegmentMismatch is returned when two chains are joined at different vertices.
	ErrSegmentMismatch = errors.New("search: segment endpoints do not match")
)
