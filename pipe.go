package minixfs

import "sync"

// pipeState holds a pipe inode's ring buffer state. Spec section 4.8
// describes the original encoding as squatting on an inode's own size and
// zone[0]/zone[1] fields; per the "pipe state as a tagged variant"
// design note, this implementation keeps that state in its own struct
// hanging off Inode.pipe instead, addressed directly rather than through
// overloaded on-disk fields that never reach disk anyway (a pipe inode is
// never written back).
type pipeState struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf        [PipePageSize]byte
	head, tail uint32 // both mod PipePageSize

	readers, writers int // open-end counts, starts at 1 each
	closed           bool
}

func newPipeState() *pipeState {
	p := &pipeState{readers: 1, writers: 1}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *pipeState) size() uint32 {
	return (p.head - p.tail + PipePageSize) % PipePageSize
}

func (p *pipeState) empty() bool { return p.head == p.tail }
func (p *pipeState) full() bool  { return p.size() == PipePageSize-1 }

// closeEnd is called from Iput when a pipe inode's last file-table
// reference of either end goes away; since this package does not track
// which end iput is dropping separately from the general inode refcount,
// callers that know which end they're closing should use CloseReadEnd /
// CloseWriteEnd instead. closeEnd degrades to closing both, used only
// when the whole inode is being torn down.
func (p *pipeState) closeEnd() {
	p.mu.Lock()
	p.closed = true
	p.readers, p.writers = 0, 0
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *pipeState) CloseReadEnd() {
	p.mu.Lock()
	p.readers--
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *pipeState) CloseWriteEnd() {
	p.mu.Lock()
	p.writers--
	p.cond.Broadcast()
	p.mu.Unlock()
}

// MakePipe allocates a fresh pipe inode: no disk inode number, no data
// blocks, just an in-memory slot with a ring buffer (spec section 4.8).
// It is never linked into a directory and is freed as soon as both ends
// close.
func (fsys *FS) MakePipe() (*Inode, error) {
	fsys.Inodes.mu.Lock()
	idx, err := fsys.Inodes.acquireSlotLocked()
	if err != nil {
		fsys.Inodes.mu.Unlock()
		return nil, err
	}
	in := fsys.Inodes.slots[idx]
	in.reset()
	in.RefCount = 2
	in.IsPipe = true
	in.pipe = newPipeState()
	in.Mode = S_IFIFO | 0600
	in.NLinks = 1
	fsys.Inodes.mu.Unlock()
	return in, nil
}

// ReadPipe drains up to len(dst) bytes, blocking while the ring is empty
// and a writer remains open; returns 0 (EOF) once the ring is empty and
// every writer has closed (spec section 4.8).
func (in *Inode) ReadPipe(dst []byte) (int, error) {
	p := in.pipe
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.empty() {
		if p.writers == 0 {
			return 0, nil
		}
		p.cond.Wait()
	}

	n := 0
	for n < len(dst) && !p.empty() {
		dst[n] = p.buf[p.tail]
		p.tail = (p.tail + 1) % PipePageSize
		n++
	}
	p.cond.Broadcast()
	return n, nil
}

// WritePipe appends up to len(src) bytes, blocking while the ring has no
// room and a reader remains open. If no reader remains, it returns the
// partial count written so far (0 on the first call) and ErrBadF standing
// in for SIGPIPE, since this package has no process/signal layer (spec
// section 4.8).
func (in *Inode) WritePipe(src []byte) (int, error) {
	p := in.pipe
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for n < len(src) {
		for p.full() {
			if p.readers == 0 {
				p.cond.Broadcast()
				return n, ErrBadF
			}
			p.cond.Wait()
		}
		if p.readers == 0 {
			p.cond.Broadcast()
			return n, ErrBadF
		}
		for n < len(src) && !p.full() {
			p.buf[p.head] = src[n]
			p.head = (p.head + 1) % PipePageSize
			n++
		}
		p.cond.Broadcast()
	}
	return n, nil
}
