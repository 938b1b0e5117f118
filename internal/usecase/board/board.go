// Package board keeps the team board: ordered containers of agents, one of
// which is the pool new agents land in.
package board

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"agentverse/internal/domain"
)

// PoolID is the container that always exists.
const PoolID = "pool"

// Container is one column of the board.
type Container struct {
	ID     string         `json:"id"`
	Title  string         `json:"title"`
	Agents []domain.Agent `json:"agents"`
}

// Snapshot is a deep copy of the board in display order.
type Snapshot struct {
	Containers []Container `json:"containers"`
}

// Board is safe for concurrent use.
type Board struct {
	mu         sync.Mutex
	order      []string
	containers map[string]*Container
}

// New returns a board with the pool and two empty teams.
func New() *Board {
	b := &Board{containers: make(map[string]*Container)}
	// Agents are never seeded; clients fill the pool through AddAgent.
	b.add(&Container{ID: PoolID, Title: "Agent Pool"})
	b.add(&Container{ID: "team1", Title: "Research Team"})
	b.add(&Container{ID: "team2", Title: "Creative Team"})
	return b
}

func (b *Board) add(c *Container) {
	b.order = append(b.order, c.ID)
	b.containers[c.ID] = c
}

// Snapshot returns a copy of every container.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Board) snapshotLocked() Snapshot {
	out := Snapshot{Containers: make([]Container, 0, len(b.order))}
	for _, id := range b.order {
		c := b.containers[id]
		out.Containers = append(out.Containers, Container{
			ID:     c.ID,
			Title:  c.Title,
			Agents: slices.Clone(c.Agents),
		})
	}
	return out
}

// AddAgent prepends agent to the pool. An empty ID is generated.
func (b *Board) AddAgent(agent domain.Agent) (domain.Agent, error) {
	const op = "board.AddAgent"
	if err := domain.RequireText(op, "name", agent.Name, 1); err != nil {
		return agent, err
	}
	if agent.ID == "" {
		agent.ID = "agent-" + strings.ToLower(ulid.Make().String())
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.containers[agent.ID]; ok {
		return agent, domain.NewDomainError(op, domain.ErrValidation, "id "+agent.ID+" is a container")
	}
	if c, _ := b.locateLocked(agent.ID); c != nil {
		return agent, domain.NewDomainError(op, domain.ErrValidation, "agent "+agent.ID+" is already on the board")
	}
	pool := b.containers[PoolID]
	pool.Agents = append([]domain.Agent{agent}, pool.Agents...)
	return agent, nil
}

// AddTeam creates an empty container. Empty id and title are generated.
func (b *Board) AddTeam(id, title string) (Container, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id == "" {
		id = "team-" + strings.ToLower(ulid.Make().String())
	}
	if _, ok := b.containers[id]; ok {
		return Container{}, domain.NewDomainError("board.AddTeam", domain.ErrContainerExists, id)
	}
	if c, _ := b.locateLocked(id); c != nil {
		return Container{}, domain.NewDomainError("board.AddTeam", domain.ErrContainerExists, id+" is an agent")
	}
	if strings.TrimSpace(title) == "" {
		title = fmt.Sprintf("Team %d", len(b.order)+1)
	}
	c := &Container{ID: id, Title: title}
	b.add(c)
	return *c, nil
}

// RenameTeam changes a container's title.
func (b *Board) RenameTeam(id, title string) error {
	const op = "board.RenameTeam"
	if err := domain.RequireText(op, "title", title, 1); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.containers[id]
	if !ok {
		return domain.NewDomainError(op, domain.ErrContainerNotFound, id)
	}
	c.Title = title
	return nil
}

// RemoveTeam deletes a team and returns its agents to the end of the pool.
func (b *Board) RemoveTeam(id string) error {
	const op = "board.RemoveTeam"
	if id == PoolID {
		return domain.NewDomainError(op, domain.ErrValidation, "the pool cannot be removed")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.containers[id]
	if !ok {
		return domain.NewDomainError(op, domain.ErrContainerNotFound, id)
	}
	pool := b.containers[PoolID]
	pool.Agents = append(pool.Agents, c.Agents...)
	delete(b.containers, id)
	b.order = slices.DeleteFunc(b.order, func(s string) bool { return s == id })
	return nil
}

// TeamInput builds an orchestration request from a container's agents.
func (b *Board) TeamInput(id, task string) (domain.OrchestrationInput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.containers[id]
	if !ok {
		return domain.OrchestrationInput{}, domain.NewDomainError("board.TeamInput", domain.ErrContainerNotFound, id)
	}
	in := domain.OrchestrationInput{TeamName: c.Title, Task: task}
	for _, a := range c.Agents {
		in.Agents = append(in.Agents, a.Profile())
	}
	return in, nil
}

// locateLocked returns the container holding agentID and the agent's index.
func (b *Board) locateLocked(agentID string) (*Container, int) {
	for _, id := range b.order {
		c := b.containers[id]
		if i := slices.IndexFunc(c.Agents, func(a domain.Agent) bool { return a.ID == agentID }); i >= 0 {
			return c, i
		}
	}
	return nil, -1
}

// resolveLocked maps an id that is either a container or an agent to its container.
func (b *Board) resolveLocked(id string) *Container {
	if c, ok := b.containers[id]; ok {
		return c
	}
	c, _ := b.locateLocked(id)
	return c
}
