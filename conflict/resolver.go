package conflict

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/teamflow/task"
)

// Resolver 检测并裁决冲突
type Resolver struct {
	now    func() time.Time
	logger *zap.Logger
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// WithLogger sets the resolver logger.
func WithLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver 创建冲突裁决器
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "conflict_resolver"))
	return r
}

// Detect 从并行结果中提取立场；至少两个不同立场才构成冲突。
// 立场一致（或缺失）不构成冲突，返回 nil。
func (r *Resolver) Detect(executionID, taskID string, results []*task.Result) *Conflict {
	var positions []Position
	stances := make(map[string]struct{})
	for _, res := range results {
		if res == nil || res.Stance == "" {
			continue
		}
		positions = append(positions, Position{
			AgentID:  res.AgentID,
			Stance:   res.Stance,
			Priority: res.Confidence,
		})
		stances[res.Stance] = struct{}{}
	}
	if len(stances) < 2 {
		return nil
	}

	c := &Conflict{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		TaskID:      taskID,
		Topic:       taskID,
		Positions:   positions,
		DetectedAt:  r.now(),
		Status:      StatusPending,
	}
	r.logger.Debug("conflict detected",
		zap.String("conflict_id", c.ID),
		zap.String("task_id", taskID),
		zap.Int("positions", len(positions)),
	)
	return c
}

// Resolve 按策略裁决冲突。无法裁决的路径统一落到 escalate，
// 返回 Pending 的 Resolution 并将冲突标记为 escalated。
func (r *Resolver) Resolve(c *Conflict, strategy Strategy, supervisorID string) *Resolution {
	var res *Resolution
	switch strategy {
	case StrategyVote:
		res = r.resolveVote(c)
	case StrategyAuthority:
		res = r.resolveAuthority(c, supervisorID)
	case StrategyCompromise:
		res = r.resolveCompromise(c)
	default:
		res = r.escalate(c, "strategy escalate")
	}

	if res.Pending {
		c.Status = StatusEscalated
	} else {
		c.Status = StatusResolved
	}
	return res
}

// resolveVote 多数表决：每个立场一票；平票比较立场优先级之和；仍平则升级
func (r *Resolver) resolveVote(c *Conflict) *Resolution {
	votes := make(map[string]int)
	weight := make(map[string]float64)
	for _, p := range c.Positions {
		votes[p.Stance]++
		weight[p.Stance] += p.Priority
	}

	best, tied := pickPlurality(votes, weight)
	if tied {
		res := r.escalate(c, "vote tied on count and priority")
		res.Votes = votes
		return res
	}

	return &Resolution{
		ConflictID: c.ID,
		Strategy:   StrategyVote,
		Outcome:    best,
		Detail:     fmt.Sprintf("plurality %d/%d", votes[best], len(c.Positions)),
		Votes:      votes,
		ResolvedAt: r.now(),
	}
}

func pickPlurality(votes map[string]int, weight map[string]float64) (string, bool) {
	stances := make([]string, 0, len(votes))
	for s := range votes {
		stances = append(stances, s)
	}
	sort.Strings(stances) // deterministic iteration

	best := ""
	tied := false
	for _, s := range stances {
		switch {
		case best == "" || votes[s] > votes[best]:
			best, tied = s, false
		case votes[s] == votes[best]:
			// count tie: compare summed priorities
			switch {
			case weight[s] > weight[best]:
				best, tied = s, false
			case weight[s] == weight[best]:
				tied = true
			}
		}
	}
	return best, tied
}

// resolveAuthority 主管立场获胜；主管未表态则升级
func (r *Resolver) resolveAuthority(c *Conflict, supervisorID string) *Resolution {
	for _, p := range c.Positions {
		if p.AgentID == supervisorID && supervisorID != "" {
			return &Resolution{
				ConflictID: c.ID,
				Strategy:   StrategyAuthority,
				Outcome:    p.Stance,
				Detail:     "supervisor stance",
				ResolvedBy: supervisorID,
				ResolvedAt: r.now(),
			}
		}
	}
	return r.escalate(c, "supervisor absent from positions")
}

// resolveCompromise 数值立场取优先级加权平均；可合并的列表立场按
// 优先级排序求并集；其余情况升级
func (r *Resolver) resolveCompromise(c *Conflict) *Resolution {
	if outcome, ok := weightedMean(c.Positions); ok {
		return &Resolution{
			ConflictID: c.ID,
			Strategy:   StrategyCompromise,
			Outcome:    outcome,
			Detail:     "priority-weighted mean",
			ResolvedAt: r.now(),
		}
	}
	if outcome, ok := mergeLists(c.Positions); ok {
		return &Resolution{
			ConflictID: c.ID,
			Strategy:   StrategyCompromise,
			Outcome:    outcome,
			Detail:     "priority-ordered union",
			ResolvedAt: r.now(),
		}
	}
	return r.escalate(c, "stances neither numeric nor mergeable")
}

// weightedMean succeeds only when every stance parses as a number.
func weightedMean(positions []Position) (string, bool) {
	var sum, weights float64
	for _, p := range positions {
		v, err := strconv.ParseFloat(strings.TrimSpace(p.Stance), 64)
		if err != nil {
			return "", false
		}
		w := p.Priority
		if w <= 0 {
			w = 1
		}
		sum += v * w
		weights += w
	}
	if weights == 0 {
		return "", false
	}
	return strconv.FormatFloat(sum/weights, 'g', -1, 64), true
}

// mergeLists succeeds when at least one stance is a comma/semicolon list;
// the union keeps higher-priority positions first.
func mergeLists(positions []Position) (string, bool) {
	hasList := false
	for _, p := range positions {
		if strings.ContainsAny(p.Stance, ",;") {
			hasList = true
			break
		}
	}
	if !hasList {
		return "", false
	}

	ordered := make([]Position, len(positions))
	copy(ordered, positions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	seen := make(map[string]struct{})
	var merged []string
	for _, p := range ordered {
		for _, part := range strings.FieldsFunc(p.Stance, func(r rune) bool {
			return r == ',' || r == ';'
		}) {
			item := strings.TrimSpace(part)
			if item == "" {
				continue
			}
			if _, dup := seen[item]; dup {
				continue
			}
			seen[item] = struct{}{}
			merged = append(merged, item)
		}
	}
	return strings.Join(merged, ", "), true
}

func (r *Resolver) escalate(c *Conflict, detail string) *Resolution {
	return &Resolution{
		ConflictID: c.ID,
		Strategy:   StrategyEscalate,
		Detail:     detail,
		ResolvedAt: r.now(),
		Pending:    true,
	}
}
