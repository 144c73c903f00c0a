package conveyor

import "fmt"

// Message is a unit of transport between stages. It carries either a
// payload or the end-of-stream sentinel.
type Message[T any] struct {
	Payload T
	eos     bool
}

// Send wraps the payload into a message.
func Send[T any](v T) Message[T] {
	return Message[T]{Payload: v}
}

// EOS returns the end-of-stream sentinel. Every stage forwards it
// unchanged and then terminates.
func EOS[T any]() Message[T] {
	return Message[T]{eos: true}
}

// IsEOS reports whether the message is the end-of-stream sentinel.
func (m Message[T]) IsEOS() bool {
	return m.eos
}

func (m Message[T]) String() string {
	if m.eos {
		return "EOS"
	}
	return fmt.Sprintf("%v", m.Payload)
}
