package metacache

import "errors"

// ErrNotFound is returned by FileManager.Get/probe when neither a bare
// key nor a directory-object key HEADs successfully and the
// disambiguating listing is empty.
var ErrNotFound = errors.New("metacache: not found")
