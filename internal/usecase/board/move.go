package board

import (
	"slices"

	"agentverse/internal/domain"
)

// Move drops activeID onto overID. Either id may name an agent; overID may
// also name a container. The containers are resolved first and the move is
// dispatched to MoveWithin or MoveAcross.
func (b *Board) Move(activeID, overID string) error {
	const op = "board.Move"
	b.mu.Lock()
	defer b.mu.Unlock()

	from, _ := b.locateLocked(activeID)
	if from == nil {
		return domain.NewDomainError(op, domain.ErrBoardItemNotFound, activeID)
	}
	to := b.resolveLocked(overID)
	if to == nil {
		return domain.NewDomainError(op, domain.ErrBoardItemNotFound, overID)
	}
	if from == to {
		return b.moveWithinLocked(op, from, activeID, overID)
	}
	return b.moveAcrossLocked(op, from, to, activeID, overID)
}

// MoveWithin reorders an agent inside one container: the active agent takes
// the index of the over agent. Equal indices, or overID naming the container
// itself, leave the order unchanged.
func (b *Board) MoveWithin(containerID, activeID, overID string) error {
	const op = "board.MoveWithin"
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.containers[containerID]
	if !ok {
		return domain.NewDomainError(op, domain.ErrContainerNotFound, containerID)
	}
	return b.moveWithinLocked(op, c, activeID, overID)
}

func (b *Board) moveWithinLocked(op string, c *Container, activeID, overID string) error {
	from := indexOf(c.Agents, activeID)
	if from < 0 {
		return domain.NewDomainError(op, domain.ErrBoardItemNotFound, activeID)
	}
	if overID == c.ID {
		return nil
	}
	to := indexOf(c.Agents, overID)
	if to < 0 {
		return domain.NewDomainError(op, domain.ErrBoardItemNotFound, overID)
	}
	if from == to {
		return nil
	}
	c.Agents = arrayMove(c.Agents, from, to)
	return nil
}

// MoveAcross removes the active agent from one container and inserts it at the
// over agent's index in another. When overID is the target container, or is
// not in it, the agent is appended.
func (b *Board) MoveAcross(fromID, toID, activeID, overID string) error {
	const op = "board.MoveAcross"
	b.mu.Lock()
	defer b.mu.Unlock()

	from, ok := b.containers[fromID]
	if !ok {
		return domain.NewDomainError(op, domain.ErrContainerNotFound, fromID)
	}
	to, ok := b.containers[toID]
	if !ok {
		return domain.NewDomainError(op, domain.ErrContainerNotFound, toID)
	}
	if from == to {
		return b.moveWithinLocked(op, from, activeID, overID)
	}
	return b.moveAcrossLocked(op, from, to, activeID, overID)
}

func (b *Board) moveAcrossLocked(op string, from, to *Container, activeID, overID string) error {
	i := indexOf(from.Agents, activeID)
	if i < 0 {
		return domain.NewDomainError(op, domain.ErrBoardItemNotFound, activeID)
	}
	agent := from.Agents[i]
	from.Agents = slices.Delete(from.Agents, i, i+1)

	at := indexOf(to.Agents, overID)
	if at < 0 {
		at = len(to.Agents)
	}
	to.Agents = slices.Insert(to.Agents, at, agent)
	return nil
}

func indexOf(agents []domain.Agent, id string) int {
	return slices.IndexFunc(agents, func(a domain.Agent) bool { return a.ID == id })
}

// arrayMove returns a copy of s with the element at from moved to index to.
func arrayMove(s []domain.Agent, from, to int) []domain.Agent {
	out := slices.Clone(s)
	item := out[from]
	out = slices.Delete(out, from, from+1)
	return slices.Insert(out, to, item)
}
