package responder

import "github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/message"

// ResponseKind tags the response variant.
type ResponseKind string

const (
	// ResponseStatic replies with fixed text.
	ResponseStatic ResponseKind = "static"

	// ResponseProducer replies with text produced from the message.
	ResponseProducer ResponseKind = "producer"
)

// Response is a tagged variant: static text or a deferred producer
// invoked with the matched message.
type Response struct {
	Kind     ResponseKind
	text     string
	producer func(rec *message.Record) string
}

// NewStaticResponse replies with text.
func NewStaticResponse(text string) Response {
	return Response{Kind: ResponseStatic, text: text}
}

// NewProducerResponse replies with fn's result for the matched message.
func NewProducerResponse(fn func(rec *message.Record) string) Response {
	return Response{Kind: ResponseProducer, producer: fn}
}

// valid reports whether the response has its payload.
func (r Response) valid() bool {
	switch r.Kind {
	case ResponseStatic:
		return r.text != ""
	case ResponseProducer:
		return r.producer != nil
	}
	return false
}

// resolve produces the reply text for rec. The caller contains panics
// from producers.
func (r Response) resolve(rec *message.Record) string {
	switch r.Kind {
	case ResponseStatic:
		return r.text
	case ResponseProducer:
		return r.producer(rec)
	}
	return ""
}

// Display renders the response for listings.
func (r Response) Display() string {
	switch r.Kind {
	case ResponseStatic:
		return r.text
	case ResponseProducer:
		return "<dynamic>"
	}
	return "invalid"
}
