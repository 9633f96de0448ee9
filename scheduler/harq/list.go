package harq

// noRef marks the absence of a process record.
const noRef int32 = -1

// link holds the intrusive list pointers of one process record. A record is a
// member of at most one list at a time, so one pair of links per record is
// enough for both the timing wheel and the pending retransmission list.
type link struct {
	prev, next int32
}

// refList is a doubly-linked list of process records threaded through a link
// arena. It never allocates.
type refList struct {
	head, tail int32
	size       int
}

func newRefList() refList {
	return refList{head: noRef, tail: noRef}
}

func (l *refList) pushFront(links []link, ref int32) {
	links[ref] = link{prev: noRef, next: l.head}

	if l.head != noRef {
		links[l.head].prev = ref
	} else {
		l.tail = ref
	}

	l.head = ref
	l.size++
}

func (l *refList) remove(links []link, ref int32) {
	lk := links[ref]

	if lk.prev != noRef {
		links[lk.prev].next = lk.next
	} else {
		l.head = lk.next
	}

	if lk.next != noRef {
		links[lk.next].prev = lk.prev
	} else {
		l.tail = lk.prev
	}

	links[ref] = link{prev: noRef, next: noRef}
	l.size--
}

// forEach visits the list from head to tail. The visitor may remove the
// record it is given.
func (l *refList) forEach(links []link, visit func(ref int32)) {
	for ref := l.head; ref != noRef; {
		next := links[ref].next
		visit(ref)
		ref = next
	}
}

func (l *refList) len() int {
	return l.size
}

// timingWheel maps a slot counter modulo the ring size to the records whose
// acknowledgment timeout falls on that slot.
type timingWheel struct {
	buckets []refList
}

func newTimingWheel(ringSize int) timingWheel {
	w := timingWheel{buckets: make([]refList, ringSize)}
	for i := range w.buckets {
		w.buckets[i] = newRefList()
	}

	return w
}

func (w *timingWheel) bucket(slotCount uint32) *refList {
	return &w.buckets[slotCount%uint32(len(w.buckets))]
}

func (w *timingWheel) ringSize() int {
	return len(w.buckets)
}
