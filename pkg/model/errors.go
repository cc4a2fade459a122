package model

import "errors"

var (
	errMessagesCountMismatch = errors.New("model: messages_count does not match len(messages)")
	errMissingMustCoverMap   = errors.New("model: must_cover_points is non-empty but must_cover_map is missing")
)
