package afio

// validatePrecondition enforces spec §4.7's input validation: a
// non-invalid precondition must belong to this dispatcher. Cross-dispatcher
// preconditions are a caller error (ErrInvalidArgument), not something the
// engine can resolve — two dispatchers never share an op table.
func (d *Dispatcher) validatePrecondition(h Handle) error {
	if h.valid() && h.disp != d {
		return invalidArgf("afio: precondition belongs to a different dispatcher")
	}
	return nil
}

func validatePathReqs(reqs []PathOpReq, d *Dispatcher) error {
	for i, r := range reqs {
		if r.Path == "" {
			return invalidArgf("afio: path request %d has an empty path", i)
		}
		if err := d.validatePrecondition(r.Precondition); err != nil {
			return err
		}
	}
	return nil
}

func validateHandles(hs []Handle, d *Dispatcher) error {
	for i, h := range hs {
		if h.valid() && h.disp != d {
			return invalidArgf("afio: handle %d belongs to a different dispatcher", i)
		}
	}
	return nil
}
