// =============================================================================
// 📦 测试数据工厂 - 智能体档案与团队配置
// =============================================================================
// 提供预定义的档案、任务图和团队配置，用于测试
// =============================================================================
package fixtures

import (
	"github.com/BaSui01/teamflow/engine"
	"github.com/BaSui01/teamflow/profile"
	"github.com/BaSui01/teamflow/task"
)

// =============================================================================
// 🤖 档案工厂
// =============================================================================

// ResearcherProfile 返回研究员档案（高开放性，擅长检索分析）
func ResearcherProfile() *profile.AgentProfile {
	return &profile.AgentProfile{
		ID:   "researcher-001",
		Name: "researcher",
		Role: "researcher",
		Personality: profile.PersonalityVector{
			Openness:          0.9,
			Conscientiousness: 0.6,
			Extraversion:      0.4,
			Agreeableness:     0.7,
			Neuroticism:       0.3,
		},
		Skills: []profile.Skill{
			{Name: "web_search", Level: 85, Category: "research"},
			{Name: "summarize", Level: 75, Category: "analysis"},
		},
		Tools:              []string{"search", "browser"},
		CommunicationStyle: "detailed",
		DecisionStyle:      "evidence_based",
	}
}

// CriticProfile 返回评审员档案（高尽责性，擅长审查）
func CriticProfile() *profile.AgentProfile {
	return &profile.AgentProfile{
		ID:   "critic-001",
		Name: "critic",
		Role: "reviewer",
		Personality: profile.PersonalityVector{
			Openness:          0.5,
			Conscientiousness: 0.95,
			Extraversion:      0.3,
			Agreeableness:     0.4,
			Neuroticism:       0.4,
		},
		Skills: []profile.Skill{
			{Name: "review", Level: 90, Category: "analysis"},
			{Name: "fact_check", Level: 80, Category: "research"},
		},
		Tools:              []string{"search"},
		CommunicationStyle: "terse",
		DecisionStyle:      "cautious",
	}
}

// WriterProfile 返回撰稿人档案
func WriterProfile() *profile.AgentProfile {
	return &profile.AgentProfile{
		ID:   "writer-001",
		Name: "writer",
		Role: "writer",
		Personality: profile.PersonalityVector{
			Openness:          0.8,
			Conscientiousness: 0.7,
			Extraversion:      0.6,
			Agreeableness:     0.8,
			Neuroticism:       0.2,
		},
		Skills: []profile.Skill{
			{Name: "draft", Level: 88, Category: "writing"},
			{Name: "edit", Level: 70, Category: "writing"},
		},
		Tools:              []string{"editor", "search"},
		CommunicationStyle: "narrative",
		DecisionStyle:      "intuitive",
	}
}

// SupervisorProfile 返回主管档案（hierarchical 模式用）
func SupervisorProfile() *profile.AgentProfile {
	return &profile.AgentProfile{
		ID:   "supervisor-001",
		Name: "supervisor",
		Role: "supervisor",
		Personality: profile.PersonalityVector{
			Openness:          0.6,
			Conscientiousness: 0.85,
			Extraversion:      0.7,
			Agreeableness:     0.6,
			Neuroticism:       0.2,
		},
		Skills: []profile.Skill{
			{Name: "delegate", Level: 92, Category: "management"},
			{Name: "review", Level: 78, Category: "analysis"},
		},
		Tools:              []string{"dashboard"},
		CommunicationStyle: "directive",
		DecisionStyle:      "decisive",
	}
}

// ResearchTeamProfiles 返回一支完整研究团队的档案
func ResearchTeamProfiles() []*profile.AgentProfile {
	return []*profile.AgentProfile{
		ResearcherProfile(),
		CriticProfile(),
		WriterProfile(),
	}
}

// =============================================================================
// 🗂️ 任务图工厂
// =============================================================================

// PipelineTasks 返回线性流水线任务图 research → draft → review
func PipelineTasks() []*task.Task {
	return []*task.Task{
		{ID: "research", Type: "research", Description: "gather sources", Priority: 3},
		{ID: "draft", Type: "writing", Description: "write the draft", Priority: 2, DependsOn: []string{"research"}},
		{ID: "review", Type: "analysis", Description: "review the draft", Priority: 1, DependsOn: []string{"draft"}},
	}
}

// DiamondTasks 返回菱形任务图 root → {left, right} → join
func DiamondTasks() []*task.Task {
	return []*task.Task{
		{ID: "root"},
		{ID: "left", DependsOn: []string{"root"}},
		{ID: "right", DependsOn: []string{"root"}},
		{ID: "join", DependsOn: []string{"left", "right"}},
	}
}

// SingleTask 返回单任务图
func SingleTask(id string) []*task.Task {
	return []*task.Task{{ID: id}}
}

// =============================================================================
// 🤝 团队配置工厂
// =============================================================================

// PipelineTeamConfig 返回流水线团队配置
func PipelineTeamConfig() *engine.TeamConfiguration {
	return &engine.TeamConfiguration{
		Name:     "research-pipeline",
		Mode:     engine.ModePipeline,
		AgentIDs: []string{"researcher-001", "writer-001", "critic-001"},
		Tasks:    PipelineTasks(),
	}
}

// DebateTeamConfig 返回辩论团队配置
func DebateTeamConfig() *engine.TeamConfiguration {
	return &engine.TeamConfiguration{
		Name:     "debate",
		Mode:     engine.ModeDebate,
		AgentIDs: []string{"researcher-001", "critic-001", "writer-001"},
		Tasks:    SingleTask("motion"),
	}
}

// HierarchicalTeamConfig 返回层级团队配置
func HierarchicalTeamConfig() *engine.TeamConfiguration {
	return &engine.TeamConfiguration{
		Name:         "managed",
		Mode:         engine.ModeHierarchical,
		AgentIDs:     []string{"supervisor-001", "researcher-001", "writer-001"},
		SupervisorID: "supervisor-001",
		Tasks:        PipelineTasks(),
	}
}
