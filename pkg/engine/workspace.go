package engine

// Workspace claims the context's entire current pool as one buffer and
// publishes its address and size through the ambient Context.Workspace
// and Context.WorkspaceSize fields. It exists for kernel toolchains
// that cannot take an explicit buffer argument and instead read context
// state; everything else should use Malloc directly.
type Workspace struct {
	*Scratch
}

// AcquireWorkspace locks the whole pool for one kernel invocation. A
// context whose pool has never been grown yields an empty workspace,
// which is still a valid handle.
func (c *Context) AcquireWorkspace() (*Workspace, error) {
	s, err := c.Malloc(c.memSize)
	if err != nil {
		return nil, err
	}
	c.Workspace = s.Ptr(0)
	c.WorkspaceSize = s.TotalSize()
	return &Workspace{Scratch: s}, nil
}

// Release retracts the published workspace fields, then releases the
// underlying pool lock.
func (w *Workspace) Release() {
	if w == nil || w.Scratch == nil || w.done {
		return
	}
	w.ctx.Workspace = nil
	w.ctx.WorkspaceSize = 0
	w.Scratch.Release()
}
