package task

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/BaSui01/teamflow/profile"
)

// ErrNoCapableAgent is returned when no candidate can take the task.
// The engine routes it through the recovery policy.
var ErrNoCapableAgent = errors.New("no capable agent for task")

// StrategyName identifies an assignment strategy.
type StrategyName string

const (
	StrategySkillMatch  StrategyName = "skill_match"
	StrategyRoundRobin  StrategyName = "round_robin"
	StrategyLoadBalance StrategyName = "load_balance"
	StrategyAuction     StrategyName = "auction"
)

// LoadView exposes the per-agent in-flight load at pick time.
type LoadView interface {
	// InProgress returns the number of tasks the agent currently runs.
	InProgress(agentID string) int
}

// Assigner picks an agent for a task. Candidates arrive in registration
// order; a nil error means agentID is a member of candidates.
type Assigner interface {
	Name() StrategyName
	Pick(t *Task, candidates []*profile.AgentProfile, view LoadView) (string, error)
}

// BidFunc computes an agent's sealed bid for a task. The auction assigner
// falls back to a skill-alignment bid when fn returns ok=false.
type BidFunc func(agentID string, t *Task) (bid float64, ok bool)

// NewAssigner resolves a strategy by name. bids is consulted only by the
// auction strategy and may be nil.
func NewAssigner(name StrategyName, bids BidFunc) (Assigner, error) {
	switch name {
	case StrategySkillMatch:
		return &skillMatchAssigner{}, nil
	case StrategyRoundRobin:
		return &roundRobinAssigner{}, nil
	case StrategyLoadBalance:
		return &loadBalanceAssigner{}, nil
	case StrategyAuction:
		return &auctionAssigner{bids: bids}, nil
	default:
		return nil, fmt.Errorf("unknown assignment strategy: %s", name)
	}
}

// skillMatchAssigner scores candidates whose tool grants cover the task's
// requirements by skill alignment; ties break on PerformanceScore, then
// registration order.
type skillMatchAssigner struct{}

func (a *skillMatchAssigner) Name() StrategyName { return StrategySkillMatch }

func (a *skillMatchAssigner) Pick(t *Task, candidates []*profile.AgentProfile, _ LoadView) (string, error) {
	bestID := ""
	bestScore := -1.0
	bestPerf := -1.0

	for _, c := range candidates {
		if !c.HasTools(t.ToolsRequired) {
			continue
		}
		score := skillAlignment(c, t)
		if score > bestScore || (score == bestScore && c.PerformanceScore > bestPerf) {
			bestID = c.ID
			bestScore = score
			bestPerf = c.PerformanceScore
		}
	}
	if bestID == "" {
		return "", fmt.Errorf("%w: %s", ErrNoCapableAgent, t.ID)
	}
	return bestID, nil
}

// skillAlignment matches the task's type and required tools against the
// candidate's skill names and categories, normalized to [0, 1].
func skillAlignment(p *profile.AgentProfile, t *Task) float64 {
	wanted := make([]string, 0, len(t.ToolsRequired)+1)
	if t.Type != "" {
		wanted = append(wanted, t.Type)
	}
	wanted = append(wanted, t.ToolsRequired...)

	if len(wanted) == 0 {
		return p.PerformanceScore
	}

	var sum float64
	for _, w := range wanted {
		best := p.SkillLevel(w)
		for _, s := range p.Skills {
			if strings.EqualFold(s.Category, w) && s.Level > best {
				best = s.Level
			}
		}
		sum += best / 100
	}
	return sum / float64(len(wanted))
}

// roundRobinAssigner rotates through candidates independent of skills.
type roundRobinAssigner struct {
	mu   sync.Mutex
	next int
}

func (a *roundRobinAssigner) Name() StrategyName { return StrategyRoundRobin }

func (a *roundRobinAssigner) Pick(t *Task, candidates []*profile.AgentProfile, _ LoadView) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoCapableAgent, t.ID)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	picked := candidates[a.next%len(candidates)]
	a.next++
	return picked.ID, nil
}

// loadBalanceAssigner picks the agent with the fewest in-flight tasks,
// ties by registration order.
type loadBalanceAssigner struct{}

func (a *loadBalanceAssigner) Name() StrategyName { return StrategyLoadBalance }

func (a *loadBalanceAssigner) Pick(t *Task, candidates []*profile.AgentProfile, view LoadView) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoCapableAgent, t.ID)
	}
	bestID := ""
	bestLoad := -1
	for _, c := range candidates {
		load := 0
		if view != nil {
			load = view.InProgress(c.ID)
		}
		if bestID == "" || load < bestLoad {
			bestID = c.ID
			bestLoad = load
		}
	}
	return bestID, nil
}

// auctionAssigner runs a single-round sealed-bid auction. Each candidate
// bids skill alignment scaled by availability; a BidFunc (backed by the
// runner when it implements bidding) overrides the computed bid. Highest
// bid wins; ties go to the earliest bid.
type auctionAssigner struct {
	bids BidFunc
}

func (a *auctionAssigner) Name() StrategyName { return StrategyAuction }

func (a *auctionAssigner) Pick(t *Task, candidates []*profile.AgentProfile, view LoadView) (string, error) {
	bestID := ""
	bestBid := -1.0

	for _, c := range candidates {
		if !c.HasTools(t.ToolsRequired) {
			continue
		}
		bid, overridden := 0.0, false
		if a.bids != nil {
			bid, overridden = a.bids(c.ID, t)
		}
		if !overridden {
			availability := 1.0
			if view != nil {
				availability = 1.0 / float64(1+view.InProgress(c.ID))
			}
			bid = skillAlignment(c, t) * availability
		}
		// strict > keeps the earliest bid on ties
		if bid > bestBid {
			bestID = c.ID
			bestBid = bid
		}
	}
	if bestID == "" {
		return "", fmt.Errorf("%w: %s", ErrNoCapableAgent, t.ID)
	}
	return bestID, nil
}
