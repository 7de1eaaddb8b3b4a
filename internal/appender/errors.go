package appender

import "fmt"

// DeliveryError reports one failed dispatch. It names the recipient and the
// message that was lost.
type DeliveryError struct {
	Appender  string
	Recipient string
	Message   string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("appender %s: could not deliver to %s: %v (message: %q)",
		e.Appender, e.Recipient, e.Err, preview(e.Message, 120))
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func preview(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "..."
}
