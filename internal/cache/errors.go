package cache

import "errors"

// ErrNoSpace is returned by Read/Write/load when the free-disk-space
// guard rejects an operation that would materialize new bytes locally.
// FsFacade maps it to -ENOSPC.
var ErrNoSpace = errors.New("cache: insufficient free disk space")
