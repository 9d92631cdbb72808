package binder

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Message is a single error attributed to the declaration or binding that
// caused it.
type Message struct {
	Source Source
	Err    error
}

func (m Message) Error() string {
	return fmt.Sprintf("%v (at %s)", m.Err, m.Source)
}

func (m Message) Unwrap() error {
	return m.Err
}

// messageList carries several messages through code that only returns error.
type messageList []Message

func (l messageList) Error() string {
	parts := make([]string, len(l))
	for i, m := range l {
		parts[i] = m.Error()
	}
	return strings.Join(parts, "; ")
}

func (l messageList) Unwrap() []error {
	errs := make([]error, len(l))
	for i, m := range l {
		errs[i] = m
	}
	return errs
}

// Errors accumulates messages during a configuration or provisioning phase.
// Views created with WithSource append to the same list.
type Errors struct {
	messages *[]Message
	source   Source
}

// NewErrors creates an empty error list.
func NewErrors() *Errors {
	return &Errors{messages: new([]Message)}
}

// WithSource returns a view that attributes new errors to source.
func (e *Errors) WithSource(source Source) *Errors {
	return &Errors{messages: e.messages, source: source}
}

// Add records err. Messages and message lists keep their own sources;
// anything else is attributed to the view's source.
func (e *Errors) Add(err error) *Errors {
	if err == nil {
		return e
	}

	switch err := err.(type) {
	case messageList:
		*e.messages = append(*e.messages, err...)
	case *ProvisionError:
		*e.messages = append(*e.messages, err.Messages...)
	case *CreationError:
		*e.messages = append(*e.messages, err.Messages...)
	case Message:
		*e.messages = append(*e.messages, err)
	default:
		*e.messages = append(*e.messages, Message{Source: e.source, Err: err})
	}
	return e
}

// Merge appends every message of other.
func (e *Errors) Merge(other *Errors) *Errors {
	if other == nil || other.messages == e.messages {
		return e
	}
	*e.messages = append(*e.messages, *other.messages...)
	return e
}

// HasErrors reports whether any message was recorded.
func (e *Errors) HasErrors() bool {
	return len(*e.messages) > 0
}

// Len returns the number of recorded messages.
func (e *Errors) Len() int {
	return len(*e.messages)
}

// Messages returns a copy of the recorded messages.
func (e *Errors) Messages() []Message {
	return append([]Message(nil), *e.messages...)
}

// Err returns the recorded messages as one error, or nil.
func (e *Errors) Err() error {
	if !e.HasErrors() {
		return nil
	}
	return messageList(e.Messages())
}

// CreationError is returned when an injector cannot be created.
type CreationError struct {
	Messages []Message
}

func (e *CreationError) Error() string {
	return formatMessages("Unable to create injector, see the following errors:", e.Messages)
}

func (e *CreationError) Unwrap() error {
	return combine(e.Messages)
}

// ProvisionError is returned when a single provisioning call fails.
type ProvisionError struct {
	Messages []Message
}

func (e *ProvisionError) Error() string {
	return formatMessages("Unable to provision, see the following errors:", e.Messages)
}

func (e *ProvisionError) Unwrap() error {
	return combine(e.Messages)
}

func newCreationError(errs *Errors) error {
	if !errs.HasErrors() {
		return nil
	}
	return &CreationError{Messages: errs.Messages()}
}

// newProvisionError flattens err into a ProvisionError.
func newProvisionError(err error) error {
	if err == nil {
		return nil
	}

	if pe, ok := err.(*ProvisionError); ok {
		return pe
	}

	return &ProvisionError{Messages: NewErrors().Add(err).Messages()}
}

func combine(messages []Message) error {
	errs := make([]error, len(messages))
	for i, m := range messages {
		errs[i] = m
	}
	return multierr.Combine(errs...)
}

// headliner is implemented by errors that render their cause separately.
type headliner interface {
	headline() string
}

func splitCause(err error) (string, error) {
	if h, ok := err.(headliner); ok {
		if cause := errors.Unwrap(err); cause != nil {
			return h.headline(), cause
		}
	}
	return err.Error(), nil
}

// formatMessages renders messages as a numbered list. Identical messages
// from the same source are printed once, a cause shared with an earlier
// message is referenced by number and so is the failure behind an error
// already covered by an earlier message.
func formatMessages(heading string, messages []Message) string {
	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n\n")

	seen := make(map[string]bool, len(messages))
	causes := make(map[string]int)
	numbers := make(map[string]int, len(messages))
	n := 0

	for _, m := range messages {
		text, cause := splitCause(m.Err)
		causeText := ""
		if cause != nil {
			causeText = cause.Error()
		}

		covering, covered := coveringNumber(m.Err, numbers)
		if covered {
			causeText = fmt.Sprintf("already covered by error #%d", covering)
		}

		dedupe := text + "\x00" + causeText + "\x00" + string(m.Source)
		if seen[dedupe] {
			continue
		}
		seen[dedupe] = true
		n++
		if _, ok := numbers[m.Error()]; !ok {
			numbers[m.Error()] = n
		}

		b.WriteString(fmt.Sprintf("%d) %s\n", n, text))
		b.WriteString(fmt.Sprintf("  at %s\n", m.Source))

		switch {
		case covered:
			b.WriteString(fmt.Sprintf("  Caused by: %s\n", causeText))
		case cause != nil:
			if first, ok := causes[causeText]; ok {
				b.WriteString(fmt.Sprintf("  Caused by: same cause as error #%d\n", first))
			} else {
				causes[causeText] = n
				b.WriteString(fmt.Sprintf("  Caused by: %s\n", causeText))
			}
		}
		b.WriteString("\n")
	}

	if n == 1 {
		b.WriteString("1 error")
	} else {
		b.WriteString(fmt.Sprintf("%d errors", n))
	}

	return b.String()
}

// coveringNumber returns the number of the earlier message reporting the
// failure that err is covered by.
func coveringNumber(err error, numbers map[string]int) (int, bool) {
	var covered coveredError
	if !errors.As(err, &covered) {
		return 0, false
	}

	if n, ok := numbers[covered.cause.Error()]; ok {
		return n, true
	}
	if list, ok := covered.cause.(messageList); ok {
		for _, m := range list {
			if n, ok := numbers[m.Error()]; ok {
				return n, true
			}
		}
	}
	return 0, false
}
