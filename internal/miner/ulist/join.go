package ulist

// JoinOptions configures Join.
type JoinOptions struct {
	MinUtility int64
	// LookAhead aborts the join as soon as the transactions of px that lack
	// y rule out reaching MinUtility.
	LookAhead bool
}

// Join constructs the list of P∪{x,y} from the lists of P∪{x} and P∪{y}.
// p is the list of P and nil for the empty prefix. The bool result is false
// when look-ahead pruning aborted the join.
func Join(p, px, py *List, opts JoinOptions) (*List, bool) {
	out := &List{
		Item:     py.Item,
		Elements: make([]Element, 0, min(len(px.Elements), len(py.Elements))),
	}
	if px.part != nil {
		out.part = px.part
		out.PartSums = make([]int64, px.part.K())
		out.PartSupport = make([]int32, px.part.K())
	}

	bound := px.SumIUtil + px.SumRUtil
	for _, ex := range px.Elements {
		ey, ok := py.Find(ex.TID)
		if !ok {
			if opts.LookAhead {
				bound -= ex.IUtil + ex.RUtil
				if bound < opts.MinUtility {
					return nil, false
				}
			}
			continue
		}
		e := Element{
			TID:   ex.TID,
			IUtil: ex.IUtil + ey.IUtil,
			NUtil: ex.NUtil + ey.NUtil,
			RUtil: ey.RUtil,
		}
		if p != nil {
			// P∪{x} occurs only where P does, so the lookup cannot miss.
			ep, _ := p.Find(ex.TID)
			e.IUtil -= ep.IUtil
			e.NUtil -= ep.NUtil
		}
		out.Add(e)
	}
	return out, true
}
