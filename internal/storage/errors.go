package storage

import "errors"

var ErrQdrantUnreachable = errors.New("qdrant server unreachable")
