package trace

import (
	"sort"

	"github.com/wricardo/mcp-training/solarfarm/game/service"
)

// SessionStats aggregates the traced ticks of one session
type SessionStats struct {
	SessionID        string  `json:"session_id"`
	Ticks            int     `json:"ticks"`
	EpisodesFinished int     `json:"episodes_finished"`
	TotalReward      float64 `json:"total_reward"`
	BestScore        float64 `json:"best_score"`
	PeakElectricity  int     `json:"peak_electricity"`
}

// Summary aggregates a set of tick entries
type Summary struct {
	Ticks            int             `json:"ticks"`
	EpisodesFinished int             `json:"episodes_finished"`
	TotalReward      float64         `json:"total_reward"`
	MeanReward       float64         `json:"mean_reward"`
	ActionCounts     map[string]int  `json:"action_counts"`
	Sessions         []*SessionStats `json:"sessions"`
}

// Summarize folds entries into per-session and overall statistics
func Summarize(entries []service.TickEntry) *Summary {
	s := &Summary{ActionCounts: make(map[string]int)}
	bySession := make(map[string]*SessionStats)
	// Ticks past the end of an episode stay done; count only the first.
	ended := make(map[episodeKey]bool)

	for _, e := range entries {
		st, ok := bySession[e.SessionID]
		if !ok {
			st = &SessionStats{SessionID: e.SessionID}
			bySession[e.SessionID] = st
		}

		s.Ticks++
		s.TotalReward += e.Reward
		st.Ticks++
		st.TotalReward += e.Reward
		if e.Score > st.BestScore {
			st.BestScore = e.Score
		}
		if e.Electricity > st.PeakElectricity {
			st.PeakElectricity = e.Electricity
		}
		key := episodeKey{e.SessionID, e.Episode}
		if e.Done && !ended[key] {
			ended[key] = true
			s.EpisodesFinished++
			st.EpisodesFinished++
		}
		for _, a := range e.Actions {
			s.ActionCounts[a.String()]++
		}
	}

	if s.Ticks > 0 {
		s.MeanReward = s.TotalReward / float64(s.Ticks)
	}
	for _, st := range bySession {
		s.Sessions = append(s.Sessions, st)
	}
	sort.Slice(s.Sessions, func(i, j int) bool { return s.Sessions[i].SessionID < s.Sessions[j].SessionID })
	return s
}

type episodeKey struct {
	session string
	episode int
}
