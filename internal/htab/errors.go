package htab

import "github.com/denbykov/jkreactor/internal/status"

var (
	errOccupied    = status.New(status.Occupied, "key already present")
	errOutOfMemory = status.New(status.Generic, "hash table insert failed: no free slot after full probe")
)
