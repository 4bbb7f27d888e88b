package fifo

// Circular Fifo object used to decouple UART reception from the
// deterministic poll loop
type Fifo struct {
	buffer   []byte
	writePos int
	readPos  int
}

func NewFifo(size uint16) *Fifo {
	f := &Fifo{
		buffer:   make([]byte, size),
		writePos: 0,
		readPos:  0,
	}
	return f
}

func (f *Fifo) Reset() {
	f.readPos = 0
	f.writePos = 0
}

func (f *Fifo) GetSpace() int {
	sizeLeft := f.readPos - f.writePos - 1
	if sizeLeft < 0 {
		sizeLeft += len(f.buffer)
	}
	return sizeLeft
}

func (f *Fifo) GetOccupied() int {
	sizeOccupied := f.writePos - f.readPos
	if sizeOccupied < 0 {
		sizeOccupied += len(f.buffer)
	}
	return sizeOccupied
}

// Push a single octet, returns false when the fifo is full
func (f *Fifo) Push(octet byte) bool {
	writePosNext := f.writePos + 1
	if writePosNext == f.readPos || (writePosNext == len(f.buffer) && f.readPos == 0) {
		return false
	}
	f.buffer[f.writePos] = octet
	if writePosNext == len(f.buffer) {
		f.writePos = 0
	} else {
		f.writePos = writePosNext
	}
	return true
}

// Pop a single octet, returns false when the fifo is empty
func (f *Fifo) Pop() (byte, bool) {
	if f.readPos == f.writePos {
		return 0, false
	}
	octet := f.buffer[f.readPos]
	f.readPos++
	if f.readPos == len(f.buffer) {
		f.readPos = 0
	}
	return octet, true
}

// Write data to fifo and return the number of bytes written
func (f *Fifo) Write(buffer []byte) int {
	writeCounter := 0
	for _, element := range buffer {
		if !f.Push(element) {
			break
		}
		writeCounter++
	}
	return writeCounter
}

// Read data from fifo and return the number of bytes read
func (f *Fifo) Read(buffer []byte) int {
	readCounter := 0
	for index := range buffer {
		octet, ok := f.Pop()
		if !ok {
			break
		}
		buffer[index] = octet
		readCounter++
	}
	return readCounter
}
