package events

// Subscriber receives raw payloads from the event bus.
type Subscriber interface {
	// Subscribe delivers payloads for topic on the returned channel until
	// the returned cancel function is called.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}

var _ Subscriber = (*NATSSubscriber)(nil)
