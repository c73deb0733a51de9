package device

import "fmt"

// TransportError reports a transport-level failure that did not come back
// as an errno (e.g. the driver handing back a ring smaller than what was
// requested). The channel façade maps it to isc.ErrTransportError.
type TransportError struct {
	Op  string
	Msg string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("device: %s: %s", e.Op, e.Msg)
}

// wrapErrno and wrapOpenErr keep the underlying error (typically a
// syscall.Errno) reachable via errors.Is/As so the channel façade can map it
// to an isc.ErrorKind without this package needing to know about that enum.
func wrapErrno(op string, err error) error {
	return fmt.Errorf("device: %s: %w", op, err)
}

func wrapOpenErr(op string, err error) error {
	return fmt.Errorf("device: %s: %w", op, err)
}
