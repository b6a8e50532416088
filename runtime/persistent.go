package runtime

import "nilan/heap"

// Persistent is a pinned reference to a heap Value. Ordinary code
// holding a plain heap.Ref across any call that might allocate risks
// the GC moving the Value out from under it; a Persistent is a root
// the collector knows to rewrite across a compaction, so it is the
// only safe way to hold a Value across an allocation. Persistents
// form a process-Context-global intrusive doubly linked list, per
// DESIGN.md's resolution of the persistent-handle open question:
// O(1) to create or release, O(live persistents) per collection.
type Persistent struct {
	ctx        *Context
	prev, next *Persistent
	ref        heap.Ref
}

// Pin creates a Persistent around ref and links it into ctx's root
// list.
func (ctx *Context) Pin(ref heap.Ref) *Persistent {
	p := &Persistent{ctx: ctx, ref: ref}
	p.next = ctx.persistentHead
	if ctx.persistentHead != nil {
		ctx.persistentHead.prev = p
	}
	ctx.persistentHead = p
	return p
}

// Get returns the Persistent's current referent, valid no matter how
// many collections have run since Pin.
func (p *Persistent) Get() heap.Ref { return p.ref }

// Release unlinks p from its Context's persistent-root list. Callers
// must release every Persistent before the owning Context is torn
// down -- the list head the Persistent unlinks itself from belongs to
// the Context, not to the handle.
func (p *Persistent) Release() {
	if p.prev != nil {
		p.prev.next = p.next
	} else if p.ctx.persistentHead == p {
		p.ctx.persistentHead = p.next
	}
	if p.next != nil {
		p.next.prev = p.prev
	}
	p.prev, p.next = nil, nil
}
