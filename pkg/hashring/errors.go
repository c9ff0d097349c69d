package hashring

import "errors"

// ErrNodeExists is returned when attempting to add a node that already exists
var ErrNodeExists = errors.New("node already exists in the hash ring")

// ErrNodeNotFound is returned when attempting to operate on a node that doesn't exist
var ErrNodeNotFound = errors.New("node not found in the hash ring")

// ErrInvalidNode is returned when attempting to add the reserved NoNode id
var ErrInvalidNode = errors.New("node id 0 is reserved")
