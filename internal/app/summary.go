package app

import (
	"fmt"
	"sort"
	"strings"

	"reitloop/internal/types"
)

type StartupSummary struct {
	Env       string
	StorePath string
	HTTPAddr  string
	Training  TrainingSummary
	Sweep     SweepSummary
	Active    map[types.ModelType]string
	Seeds     map[types.AgentType][]types.WeightConfig
}

type TrainingSummary struct {
	Mode         string
	Epochs       int
	Patience     int
	LearningRate float64
	WindowDays   int
	HiddenUnits  []int
	ArtifactDir  string
}

type SweepSummary struct {
	Enabled        bool
	Interval       string
	RunImmediately bool
}

// Render 将启动摘要格式化为文本块，供 logger.InfoBlock 输出。
func (s *StartupSummary) Render() string {
	var b strings.Builder
	line := strings.Repeat("=", 72)
	b.WriteString(line + "\n")
	b.WriteString("reitloop startup summary\n")
	b.WriteString(line + "\n")

	fmt.Fprintf(&b, "[app] env=%s http=%s store=%s\n", s.Env, s.HTTPAddr, s.StorePath)

	t := s.Training
	fmt.Fprintf(&b, "[training] mode=%s epochs=%d patience=%d lr=%g window=%dd hidden=%s artifacts=%s\n",
		t.Mode, t.Epochs, t.Patience, t.LearningRate, t.WindowDays, formatInts(t.HiddenUnits), t.ArtifactDir)

	if s.Sweep.Enabled {
		fmt.Fprintf(&b, "[sweep] every %s run_immediately=%v\n", s.Sweep.Interval, s.Sweep.RunImmediately)
	} else {
		b.WriteString("[sweep] disabled\n")
	}

	b.WriteString("[models]\n")
	for _, agent := range types.AllAgentTypes() {
		mt := types.ModelTypeFor(agent)
		version := s.Active[mt]
		if version == "" {
			version = "(no active version)"
		}
		fmt.Fprintf(&b, "  %-16s %s\n", mt, version)
	}

	b.WriteString("[weight seeds]\n")
	agents := make([]string, 0, len(s.Seeds))
	for a := range s.Seeds {
		agents = append(agents, string(a))
	}
	sort.Strings(agents)
	if len(agents) == 0 {
		b.WriteString("  -\n")
	}
	for _, a := range agents {
		parts := make([]string, 0, len(s.Seeds[types.AgentType(a)]))
		for _, w := range s.Seeds[types.AgentType(a)] {
			parts = append(parts, fmt.Sprintf("%s=%.2f", w.Name, w.Value))
		}
		fmt.Fprintf(&b, "  %-10s %s\n", a, formatList(parts))
	}
	b.WriteString(line)
	return b.String()
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func formatInts(items []int) string {
	parts := make([]string, len(items))
	for i, v := range items {
		parts[i] = fmt.Sprint(v)
	}
	return "[" + formatList(parts) + "]"
}
