// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package picture

import "sort"

// List is the decoded picture buffer in decode order.
type List struct {
	pics []*Picture
}

// Add appends p.
func (l *List) Add(p *Picture) { l.pics = append(l.pics, p) }

// Len .
func (l *List) Len() int { return len(l.pics) }

// Pictures returns the pictures in decode order. The slice is owned by the list.
func (l *List) Pictures() []*Picture { return l.pics }

// Contains reports whether p is in the list.
func (l *List) Contains(p *Picture) bool {
	for _, q := range l.pics {
		if q == p {
			return true
		}
	}
	return false
}

// Remove removes p and reports whether it was in the list.
func (l *List) Remove(p *Picture) bool {
	for i, q := range l.pics {
		if q == p {
			copy(l.pics[i:], l.pics[i+1:])
			l.pics[len(l.pics)-1] = nil
			l.pics = l.pics[:len(l.pics)-1]
			return true
		}
	}
	return false
}

// ByPOC returns a copy of the list sorted by increasing POC.
func (l *List) ByPOC() []*Picture {
	sorted := make([]*Picture, len(l.pics))
	copy(sorted, l.pics)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].POC < sorted[j].POC })
	return sorted
}

// Find returns the picture with the given POC or nil.
func (l *List) Find(poc int) *Picture {
	for _, p := range l.pics {
		if p.POC == poc && p.state != StateDecoding {
			return p
		}
	}
	return nil
}

// Sweep removes every reclaimable picture, passing each one to fn.
func (l *List) Sweep(fn func(*Picture)) int {
	n := 0
	kept := l.pics[:0]
	for _, p := range l.pics {
		if p.Reclaimable() {
			n++
			if fn != nil {
				fn(p)
			}
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(l.pics); i++ {
		l.pics[i] = nil
	}
	l.pics = kept
	return n
}

// Clear removes every picture, passing each one to fn.
func (l *List) Clear(fn func(*Picture)) {
	for i, p := range l.pics {
		if fn != nil {
			fn(p)
		}
		l.pics[i] = nil
	}
	l.pics = l.pics[:0]
}
