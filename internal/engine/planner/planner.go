package planner

import (
	"fmt"
	"slices"
	"strings"

	"discord-automod/internal/models"
)

// Reason renders the audit reason for a matched rule
func Reason(m models.MatchResult) string {
	if len(m.MatchedPatternLabels) == 0 {
		return "Triggered rule: " + m.Rule.Name
	}
	return fmt.Sprintf("Triggered rule: %s (`%s`)", m.Rule.Name, strings.Join(m.MatchedPatternLabels, "`, `"))
}

// Plan turns ordered match results into enforcement steps. delete,
// remove_reaction, timeout, kick and ban are emitted once; warn and log are
// emitted per matching rule. Steps are ordered by action rank and keep match
// order inside a rank.
func Plan(matches []models.MatchResult, target models.StepTarget) []models.ActionStep {
	var steps []models.ActionStep
	once := make(map[models.Action]int)

	for _, m := range matches {
		if m.Rule == nil {
			continue
		}
		reason := Reason(m)

		for _, a := range m.Rule.Actions {
			step := models.ActionStep{
				Action: a,
				RuleID: m.Rule.ID,
				Rule:   m.Rule.Name,
				Target: target,
				Params: models.StepParams{
					Reason: reason,
					Labels: m.MatchedPatternLabels,
				},
			}

			switch a {
			case models.ActionDelete, models.ActionRemoveReaction, models.ActionKick:
				if _, ok := once[a]; ok {
					continue
				}
			case models.ActionWarn:
				step.Params.Points = m.Rule.WarnPoints
				step.Params.DMTemplate = m.Rule.DMTemplate
				step.Params.DMEmbed = m.Rule.DMEmbed
			case models.ActionLog:
			case models.ActionTimeout:
				step.Params.TimeoutSeconds = m.Rule.ActionParams.TimeoutSeconds
				if i, ok := once[a]; ok {
					// longest timeout wins
					if steps[i].Params.TimeoutSeconds < step.Params.TimeoutSeconds {
						steps[i] = step
					}
					continue
				}
			case models.ActionBan:
				step.Params.DeleteMessageSeconds = m.Rule.ActionParams.DeleteMessageSeconds
				if _, ok := once[a]; ok {
					continue
				}
			default:
				continue
			}

			if a != models.ActionWarn && a != models.ActionLog {
				once[a] = len(steps)
			}
			steps = append(steps, step)
		}
	}

	slices.SortStableFunc(steps, func(a, b models.ActionStep) int {
		return a.Action.Rank() - b.Action.Rank()
	})
	return steps
}
