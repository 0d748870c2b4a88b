package baselinesdk

import (
	"context"
	"sync"
)

// BoardMover keeps an optimistic local view of the change-request board.
// Moves apply locally at once; the server's answer reconciles later. Each
// card carries a monotonically increasing sequence token so a response that
// was overtaken by a newer move on the same card is discarded instead of
// clobbering the local state, and a failed move rolls the card back to its
// last server-confirmed lane.
type BoardMover struct {
	Client *Client

	mu        sync.Mutex
	lanes     map[string]string // card id -> optimistic lane
	confirmed map[string]Change // card id -> last server-confirmed state
	seq       map[string]uint64 // card id -> latest issued token
	applied   map[string]uint64 // card id -> latest reconciled token
}

// MoveOutcome reports how one optimistic move resolved.
type MoveOutcome struct {
	Change     Change
	Warnings   []string
	Stale      bool // a newer move on the same card superseded this one
	RolledBack bool
	Err        error
}

// NewBoardMover wraps a client in an optimistic mover.
func NewBoardMover(client *Client) *BoardMover {
	return &BoardMover{
		Client:    client,
		lanes:     map[string]string{},
		confirmed: map[string]Change{},
		seq:       map[string]uint64{},
		applied:   map[string]uint64{},
	}
}

// Load primes the local view from the server board.
func (m *BoardMover) Load(ctx context.Context) error {
	board, err := m.Client.Board(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for lane, cards := range board {
		for _, c := range cards {
			m.lanes[c.ID] = lane
			m.confirmed[c.ID] = c
		}
	}
	return nil
}

// Lane returns the optimistic lane for a card.
func (m *BoardMover) Lane(cardID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lane, ok := m.lanes[cardID]
	return lane, ok
}

// Move applies the lane change locally, then confirms it with the server.
// The call blocks for the round trip; concurrent moves on the same card are
// serialized by token, not by lock, so the last issued move wins.
func (m *BoardMover) Move(ctx context.Context, cardID, lane string) MoveOutcome {
	m.mu.Lock()
	m.seq[cardID]++
	token := m.seq[cardID]
	m.lanes[cardID] = lane
	m.mu.Unlock()

	result, err := m.Client.MoveChange(ctx, cardID, lane)

	m.mu.Lock()
	defer m.mu.Unlock()
	if token < m.seq[cardID] || token <= m.applied[cardID] {
		// a newer move was issued or reconciled meanwhile
		return MoveOutcome{Stale: true, Err: err}
	}
	m.applied[cardID] = token
	if err != nil {
		// roll back to the last lane the server confirmed
		if c, ok := m.confirmed[cardID]; ok {
			m.lanes[cardID] = c.DeliveryLane
		} else {
			delete(m.lanes, cardID)
		}
		return MoveOutcome{RolledBack: true, Err: err}
	}
	m.confirmed[cardID] = result.Change
	m.lanes[cardID] = result.Change.DeliveryLane
	return MoveOutcome{Change: result.Change, Warnings: result.Warnings}
}
