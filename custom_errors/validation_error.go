package custom_errors

import (
	"fmt"
	"strings"
)

// ValidationError collects every failed check of a config so they can be
// reported together.
type ValidationError struct {
	Errors []error `json:"errors"`
}

func (c *ValidationError) Add(err error) {
	if err != nil {
		c.Errors = append(c.Errors, err)
	}
}

func (c *ValidationError) HasError() bool {
	return len(c.Errors) > 0
}

// Error reads "invalid config: <err>" for one failure and
// "invalid config (N errors): <err>; <err>" for several.
func (c *ValidationError) Error() string {
	switch len(c.Errors) {
	case 0:
		return ""
	case 1:
		return "invalid config: " + c.Errors[0].Error()
	}

	msgs := make([]string, len(c.Errors))
	for i, err := range c.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config (%d errors): %s", len(c.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (c *ValidationError) Unwrap() []error {
	return c.Errors
}
