package index

import "fmt"

// AttachExternal opens the index rooted at path as this manager's
// federated secondary. Searches fan out to it and merge its results,
// flagged with external provenance. Only one external instance may be
// attached at a time, and the secondary stays read-only from this
// manager's point of view.
func (m *Manager) AttachExternal(path string, opts ...Option) error {
	if m.isClosed() {
		return ErrClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.external != nil {
		return fmt.Errorf("%w: %s", ErrExternalAttached, m.external.Root())
	}

	cfg := m.cfg
	cfg.Root = path

	opts = append([]Option{WithLogger(m.logger), WithPipeline(m.pipeline)}, opts...)
	external, err := NewManager(cfg, opts...)
	if err != nil {
		return fmt.Errorf("attach external index at %s: %w", path, err)
	}
	external.isExternal = true

	m.external = external
	m.cache.Clear()

	m.logger.Info("attached external index", "path", path)
	return nil
}

// DetachExternal closes and releases the attached external instance. A
// manager with no external instance detaches trivially.
func (m *Manager) DetachExternal() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.external == nil {
		return nil
	}

	err := m.external.Close()
	m.external = nil
	m.cache.Clear()

	m.logger.Info("detached external index")
	return err
}

// External returns the attached external manager, or nil.
func (m *Manager) External() *Manager {
	return m.externalInstance()
}
