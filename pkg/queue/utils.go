package queue

import (
	"fmt"
	"strings"
)

// qualifiedStructName returns e.g. "mail.WelcomePayload" for a value or pointer.
func qualifiedStructName(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}
