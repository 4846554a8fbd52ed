package bridge

// mailbox is a FIFO ring that doubles its capacity instead of dropping.
// Callers hold the owning subscription's lock.
type mailbox struct {
	events []Event
	head   int // next write position
	tail   int // next read position
	count  int
}

func newMailbox(capacity int) *mailbox {
	if capacity <= 0 {
		capacity = 64
	}
	return &mailbox{events: make([]Event, capacity)}
}

func (m *mailbox) push(ev Event) {
	if m.count == len(m.events) {
		m.grow()
	}
	m.events[m.head] = ev
	m.head = (m.head + 1) % len(m.events)
	m.count++
}

func (m *mailbox) pop() (Event, bool) {
	if m.count == 0 {
		return Event{}, false
	}
	ev := m.events[m.tail]
	m.events[m.tail] = Event{}
	m.tail = (m.tail + 1) % len(m.events)
	m.count--
	return ev, true
}

func (m *mailbox) len() int {
	return m.count
}

func (m *mailbox) grow() {
	next := make([]Event, len(m.events)*2)
	for i := 0; i < m.count; i++ {
		next[i] = m.events[(m.tail+i)%len(m.events)]
	}
	m.events = next
	m.tail = 0
	m.head = m.count
}
