package failure

import "errors"

type Kind string

const (
	KindMissingConfiguration   Kind = "missing_configuration"
	KindTransport              Kind = "transport"
	KindMalformedResponse      Kind = "malformed_response"
	KindExhaustedRetries       Kind = "exhausted_retries"
	KindMissingSourceAttribute Kind = "missing_source_attribute"
)

type classifiedError struct {
	kind      Kind
	retryable bool
	cause     error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return string(e.kind)
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

func Wrap(cause error, kind Kind, retryable bool) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{kind: kind, retryable: retryable, cause: cause}
}

func Transport(cause error) error {
	return Wrap(cause, KindTransport, true)
}

func Malformed(cause error) error {
	return Wrap(cause, KindMalformedResponse, true)
}

func MissingConfiguration(key string) error {
	return &classifiedError{
		kind:  KindMissingConfiguration,
		cause: errors.New("missing option: " + key),
	}
}

func KindOf(err error) Kind {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.kind
	}
	return ""
}

func Retryable(err error) bool {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.retryable
	}
	return false
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
