package datanode

import "errors"

var (
	errUnreachable    = errors.New("datanode: peer unreachable")
	errRejected       = errors.New("datanode: target rejected (disk full or schema mismatch)")
	errStaleStepToken = errors.New("datanode: stale step token, superseded by a later attempt")
	errUnknownRegion  = errors.New("datanode: region not hosted on this peer")
)
