// Package stats computes round statistics and session summaries. Every
// function only reads its inputs.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/wolfeidau/planpoker/internal/models"
)

// Round computes average, min and max over the numeric votes. Sentinel cards
// are excluded; with no numeric votes all three values are 0.
func Round(votes []*models.Vote) models.RoundStats {
	st := models.RoundStats{TotalVotes: len(votes)}

	var sum float64
	for _, v := range votes {
		if !v.Value.IsNumeric() {
			continue
		}
		val := float64(v.Value)
		if st.NumericVotes == 0 || val < st.Min {
			st.Min = val
		}
		if st.NumericVotes == 0 || val > st.Max {
			st.Max = val
		}
		sum += val
		st.NumericVotes++
	}

	if st.NumericVotes > 0 {
		st.Average = roundTo1(sum / float64(st.NumericVotes))
	}

	return st
}

// ForEstimate computes statistics for a round.
func ForEstimate(e *models.Estimate) models.RoundStats {
	return Round(e.SortedVotes())
}

// Summarize rolls up every story that has at least one round, using the
// story's latest round. Stories are ordered by their session order.
func Summarize(session *models.Session, rounds []*models.Estimate, endedAt *time.Time) *models.SessionSummary {
	latest := make(map[string]*models.Estimate)
	for _, r := range rounds {
		if cur, ok := latest[r.StoryID]; !ok || r.RoundNumber > cur.RoundNumber {
			latest[r.StoryID] = r
		}
	}

	entries := make([]*models.StorySummary, 0, len(latest))
	for storyID, r := range latest {
		votes := r.Clone().SortedVotes()
		rs := Round(votes)

		entry := &models.StorySummary{
			StoryID:     storyID,
			RoundNumber: r.RoundNumber,
			Votes:       votes,
			Average:     rs.Average,
			Min:         rs.Min,
			Max:         rs.Max,
		}
		if story := session.Story(storyID); story != nil {
			entry.StoryTitle = story.Title
		}
		if r.FinalEstimate != nil {
			f := *r.FinalEstimate
			entry.FinalEstimate = &f
		}
		entries = append(entries, entry)
	}

	order := make(map[string]int, len(session.Stories))
	for i, st := range session.Stories {
		order[st.ID] = i
	}
	sort.SliceStable(entries, func(i, j int) bool {
		oi, iok := order[entries[i].StoryID]
		oj, jok := order[entries[j].StoryID]
		if iok != jok {
			return iok
		}
		if oi != oj {
			return oi < oj
		}
		return entries[i].StoryID < entries[j].StoryID
	})

	participants := make([]*models.Participant, len(session.Participants))
	for i, p := range session.Participants {
		pc := *p
		participants[i] = &pc
	}

	summary := &models.SessionSummary{
		SessionID:        session.SessionID,
		Title:            session.Title,
		Stories:          entries,
		Participants:     participants,
		ParticipantCount: len(session.Participants),
		TotalStories:     len(entries),
	}
	if endedAt != nil {
		t := *endedAt
		summary.EndedAt = &t
	}
	return summary
}

func roundTo1(v float64) float64 {
	return math.Round(v*10) / 10
}
