package storage

import "sort"

// freeChunk is a coalesced run of reclaimed stack bytes, kept sorted by
// offset (storage.rs lines 1026-1076, free_stack_chunk).
type freeChunk struct {
	offset int32
	size   uint32
}

// stackArena is the monotonically growing stack allocator: size only ever
// grows (storage.rs's stack_size field), and freed ranges are tracked as a
// sorted, coalesced free-chunk list rather than returned to the OS or
// shrinking the frame. Grounded on storage.rs's claim_stack_size (lines
// 944-983) and free_stack_chunk (lines 1026-1076).
type stackArena struct {
	// size is the total frame size claimed so far, growing monotonically.
	size uint32
	// free holds reclaimed, coalesced byte ranges sorted ascending by
	// offset. Offsets are negative-growing base-pointer displacements in
	// the public API (spec.md §3), but the arena itself tracks them as
	// plain non-negative byte offsets from the frame's low end and the
	// manager translates to/from base-pointer-relative displacements.
	free []freeChunk
}

func newStackArena() *stackArena {
	return &stackArena{}
}

// claim finds the best (smallest sufficient) free chunk for size/alignment,
// splitting it if oversized; falling back to growing the arena if no chunk
// fits. Mirrors storage.rs's claim_stack_size best-fit-by-size scan (lines
// 944-983).
func (a *stackArena) claim(size uint32, alignment uint32) int32 {
	if size == 0 {
		size = 1
	}
	bestIdx := -1
	var bestSize uint32
	for i, c := range a.free {
		if c.size < size {
			continue
		}
		alignedOffset := alignUp(c.offset, alignment)
		pad := uint32(alignedOffset - c.offset)
		if pad >= c.size || c.size-pad < size {
			continue
		}
		if bestIdx == -1 || c.size < bestSize {
			bestIdx = i
			bestSize = c.size
		}
	}
	if bestIdx != -1 {
		c := a.free[bestIdx]
		alignedOffset := alignUp(c.offset, alignment)
		pad := uint32(alignedOffset - c.offset)
		used := pad + size
		if used == c.size {
			a.free = append(a.free[:bestIdx], a.free[bestIdx+1:]...)
		} else {
			a.free[bestIdx] = freeChunk{offset: c.offset + int32(used), size: c.size - used}
		}
		if pad > 0 {
			a.release(c.offset, pad)
		}
		return alignedOffset
	}

	offset := int32(alignUp(int32(a.size), alignment))
	pad := uint32(offset) - a.size
	a.size = uint32(offset) + size
	if pad > 0 {
		a.release(int32(offset)-int32(pad), pad)
	}
	return offset
}

// release returns [offset, offset+size) to the free list, coalescing with
// any adjacent chunks and rejecting overlaps as a double-free invariant
// violation (storage.rs's free_stack_chunk, lines 1026-1076).
func (a *stackArena) release(offset int32, size uint32) {
	if size == 0 {
		return
	}
	idx := sort.Search(len(a.free), func(i int) bool { return a.free[i].offset >= offset })

	if idx < len(a.free) && a.free[idx].offset < offset+int32(size) {
		Fatal("stackArena.release", "", "double free: range [%d,%d) overlaps existing free chunk at %d", offset, offset+int32(size), a.free[idx].offset)
	}
	if idx > 0 {
		prev := a.free[idx-1]
		if prev.offset+int32(prev.size) > offset {
			Fatal("stackArena.release", "", "double free: range [%d,%d) overlaps existing free chunk at %d", offset, offset+int32(size), prev.offset)
		}
	}

	mergeLeft := idx > 0 && a.free[idx-1].offset+int32(a.free[idx-1].size) == offset
	mergeRight := idx < len(a.free) && offset+int32(size) == a.free[idx].offset

	switch {
	case mergeLeft && mergeRight:
		a.free[idx-1].size += size + a.free[idx].size
		a.free = append(a.free[:idx], a.free[idx+1:]...)
	case mergeLeft:
		a.free[idx-1].size += size
	case mergeRight:
		a.free[idx].offset = offset
		a.free[idx].size += size
	default:
		a.free = append(a.free, freeChunk{})
		copy(a.free[idx+1:], a.free[idx:])
		a.free[idx] = freeChunk{offset: offset, size: size}
	}
}

// alignUp rounds v up to the next multiple of align (align must be a power
// of two, 1 if unspecified).
func alignUp(v int32, align uint32) int32 {
	if align <= 1 {
		return v
	}
	a := int32(align)
	m := v % a
	if m == 0 {
		return v
	}
	if m < 0 {
		return v - m
	}
	return v + a - m
}
