package archive

import "errors"

var errNoDatabase = errors.New("archive: no database configured")
