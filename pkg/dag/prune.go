package dag

// Edge and vertex removal. Removing the last inedge of a vertex
// cascades: the vertex is unreachable, so its whole subgraph below is
// dropped too (unless shared with another parent). Only generation and
// the updater call these; exploration never mutates the DAG.

func (d *Dag) delAdvVertex(v *AdvVertex) {
	if cur, ok := d.AdvByHash[v.BC.StateHash()]; ok && cur == v {
		delete(d.AdvByHash, v.BC.StateHash())
	}
	delete(d.AdvByID, v.ID)
}

func (d *Dag) delAlgVertex(v *AlgVertex) {
	if cur, ok := d.AlgByHash[v.BC.AlgHash(v.NextItem)]; ok && cur == v {
		delete(d.AlgByHash, v.BC.AlgHash(v.NextItem))
	}
	delete(d.AlgByID, v.ID)
}

func removeAdvEdgeFrom(list []*AdvOutedge, e *AdvOutedge) []*AdvOutedge {
	for i, cur := range list {
		if cur == e {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func removeAlgEdgeFrom(list []*AlgOutedge, e *AlgOutedge) []*AlgOutedge {
	for i, cur := range list {
		if cur == e {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// removeAdvInedge detaches e from its target's inedge list, deleting
// the target and everything below it if it became orphaned.
func (d *Dag) removeAdvInedge(e *AdvOutedge) {
	e.To.In = removeAdvEdgeFrom(e.To.In, e)
	if len(e.To.In) == 0 {
		d.RemoveAlgOutedges(e.To)
		d.delAlgVertex(e.To)
	}
}

func (d *Dag) removeAlgInedge(e *AlgOutedge) {
	e.To.In = removeAlgEdgeFrom(e.To.In, e)
	if len(e.To.In) == 0 {
		d.RemoveAdvOutedges(e.To)
		d.delAdvVertex(e.To)
	}
}

// RemoveAdvEdge deletes one adversary outedge (and cascades below).
func (d *Dag) RemoveAdvEdge(e *AdvOutedge) {
	e.From.Out = removeAdvEdgeFrom(e.From.Out, e)
	d.removeAdvInedge(e)
}

// RemoveAlgEdge deletes one algorithm outedge (and cascades below).
func (d *Dag) RemoveAlgEdge(e *AlgOutedge) {
	e.From.Out = removeAlgEdgeFrom(e.From.Out, e)
	d.removeAlgInedge(e)
}

// RemoveAdvOutedges drops every outedge of an adversary vertex.
func (d *Dag) RemoveAdvOutedges(v *AdvVertex) {
	for _, e := range v.Out {
		d.removeAdvInedge(e)
	}
	v.Out = v.Out[:0]
}

// RemoveAlgOutedges drops every outedge of an algorithm vertex.
func (d *Dag) RemoveAlgOutedges(v *AlgVertex) {
	for _, e := range v.Out {
		d.removeAlgInedge(e)
	}
	v.Out = v.Out[:0]
}

// RemoveOutedgesExcept drops every outedge of an adversary vertex but
// the one labelled rightItem, the move that realises the win.
func (d *Dag) RemoveOutedgesExcept(v *AdvVertex, rightItem int) {
	kept := v.Out[:0]
	for _, e := range v.Out {
		if e.Item == rightItem {
			kept = append(kept, e)
		} else {
			d.removeAdvInedge(e)
		}
	}
	v.Out = kept
}

// EraseUnreachable removes every vertex not reachable from the root.
func (d *Dag) EraseUnreachable() {
	d.ClearVisited()
	if d.Root != nil {
		d.markReachableAdv(d.Root)
	}
	for id, v := range d.AdvByID {
		if !v.Visited {
			if cur, ok := d.AdvByHash[v.BC.StateHash()]; ok && cur == v {
				delete(d.AdvByHash, v.BC.StateHash())
			}
			delete(d.AdvByID, id)
		}
	}
	for id, v := range d.AlgByID {
		if !v.Visited {
			if cur, ok := d.AlgByHash[v.BC.AlgHash(v.NextItem)]; ok && cur == v {
				delete(d.AlgByHash, v.BC.AlgHash(v.NextItem))
			}
			delete(d.AlgByID, id)
		}
	}
}

func (d *Dag) markReachableAdv(v *AdvVertex) {
	if v.Visited {
		return
	}
	v.Visited = true
	for _, e := range v.Out {
		d.markReachableAlg(e.To)
	}
}

func (d *Dag) markReachableAlg(v *AlgVertex) {
	if v.Visited {
		return
	}
	v.Visited = true
	for _, e := range v.Out {
		d.markReachableAdv(e.To)
	}
}
