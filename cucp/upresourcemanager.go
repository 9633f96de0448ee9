package cucp

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sarchlab/ranstack/ran"
)

// ErrUnknownPDUSession is returned for a PDU session the UE does not have.
var ErrUnknownPDUSession = errors.New("unknown PDU session")

// DRBContext describes a data radio bearer of a PDU session.
type DRBContext struct {
	ID       ran.DRBID
	QoSFlows []uint8
}

// PDUSessionContext describes an established PDU session.
type PDUSessionContext struct {
	ID   ran.PDUSessionID
	DRBs []DRBContext
}

// UPResourceManager tracks the user-plane resources of one UE.
type UPResourceManager interface {
	GetPDUSessionContext(id ran.PDUSessionID) (PDUSessionContext, error)
}

// MemUPResourceManager keeps the PDU sessions of a UE in memory. It is safe
// for concurrent use.
type MemUPResourceManager struct {
	lock     sync.RWMutex
	sessions map[ran.PDUSessionID]PDUSessionContext
	drbOwner map[ran.DRBID]ran.PDUSessionID
}

// NewMemUPResourceManager creates an empty resource manager.
func NewMemUPResourceManager() *MemUPResourceManager {
	return &MemUPResourceManager{
		sessions: make(map[ran.PDUSessionID]PDUSessionContext),
		drbOwner: make(map[ran.DRBID]ran.PDUSessionID),
	}
}

// AddPDUSession registers a PDU session and its bearers.
func (m *MemUPResourceManager) AddPDUSession(ctx PDUSessionContext) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, found := m.sessions[ctx.ID]; found {
		return fmt.Errorf("PDU session %d already exists", ctx.ID)
	}

	for _, drb := range ctx.DRBs {
		if owner, found := m.drbOwner[drb.ID]; found {
			return fmt.Errorf("DRB %d already used by PDU session %d",
				drb.ID, owner)
		}
	}

	stored := PDUSessionContext{
		ID:   ctx.ID,
		DRBs: append([]DRBContext(nil), ctx.DRBs...),
	}
	sort.Slice(stored.DRBs, func(i, j int) bool {
		return stored.DRBs[i].ID < stored.DRBs[j].ID
	})

	m.sessions[ctx.ID] = stored
	for _, drb := range stored.DRBs {
		m.drbOwner[drb.ID] = ctx.ID
	}

	return nil
}

// RemovePDUSession forgets a PDU session and frees its bearer IDs.
func (m *MemUPResourceManager) RemovePDUSession(id ran.PDUSessionID) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	ctx, found := m.sessions[id]
	if !found {
		return fmt.Errorf("removing PDU session %d: %w", id, ErrUnknownPDUSession)
	}

	for _, drb := range ctx.DRBs {
		delete(m.drbOwner, drb.ID)
	}
	delete(m.sessions, id)

	return nil
}

// GetPDUSessionContext returns a copy of the context of a PDU session.
func (m *MemUPResourceManager) GetPDUSessionContext(
	id ran.PDUSessionID,
) (PDUSessionContext, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	ctx, found := m.sessions[id]
	if !found {
		return PDUSessionContext{},
			fmt.Errorf("PDU session %d: %w", id, ErrUnknownPDUSession)
	}

	ctx.DRBs = append([]DRBContext(nil), ctx.DRBs...)

	return ctx, nil
}

// PDUSessions returns the IDs of the established PDU sessions in order.
func (m *MemUPResourceManager) PDUSessions() []ran.PDUSessionID {
	m.lock.RLock()
	defer m.lock.RUnlock()

	ids := make([]ran.PDUSessionID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// NofDRBs returns the number of bearers in use.
func (m *MemUPResourceManager) NofDRBs() int {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return len(m.drbOwner)
}
