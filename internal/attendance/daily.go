package attendance

import (
	"context"
	"sort"
	"strconv"
	"time"

	"kiosk/internal/directory"
	"kiosk/internal/grade"
	"kiosk/internal/timekey"
)

// UnassignedTeamID buckets users whose team reference is empty or dangling.
const UnassignedTeamID = "unassigned"

// Member is a user annotated with that day's presence flag.
type Member struct {
	directory.User
	Present bool `json:"present"`
}

// GradeBucket is one (team, cohort) cell of the daily breakdown.
type GradeBucket struct {
	Grade   int      `json:"grade"` // cohort number
	Label   string   `json:"label"` // e.g. 1年生 (10期生), relative to the stats date
	Count   int      `json:"count"` // present members
	Total   int      `json:"total"` // all members
	Members []Member `json:"members"`
}

// TeamStats is one team's grade buckets, newest cohort first.
type TeamStats struct {
	TeamID   string        `json:"team_id"`
	TeamName string        `json:"team_name,omitempty"`
	Grades   []GradeBucket `json:"grades"`
}

// DayStats is the full breakdown for one date.
type DayStats struct {
	Date       string      `json:"date"` // YYYY-MM-DD
	TotalCount int         `json:"total_count"`
	Teams      []TeamStats `json:"teams"`
}

// DailyAggregator groups the whole directory by team and cohort against one
// date's logs. Presence is set-based: a user with at least one entry log
// that date is present, regardless of any same-day exit, and a second entry
// after an exit does not count twice.
type DailyAggregator struct {
	logs LogStore
	dir  directory.Directory
}

// NewDailyAggregator wires the aggregator to its stores.
func NewDailyAggregator(logs LogStore, dir directory.Directory) *DailyAggregator {
	return &DailyAggregator{logs: logs, dir: dir}
}

// Aggregate computes the breakdown for the date's partition. An empty
// partition yields an empty result, not an error.
func (a *DailyAggregator) Aggregate(ctx context.Context, date time.Time) (DayStats, error) {
	key := timekey.DateKey(date)
	logs, err := a.logs.QueryDateLogs(ctx, key)
	if err != nil {
		return DayStats{}, err
	}
	if len(logs) == 0 {
		return DayStats{Date: key}, nil
	}
	users, teams, err := a.loadDirectory(ctx)
	if err != nil {
		return DayStats{}, err
	}
	return buildDayStats(key, logs, users, teams), nil
}

func (a *DailyAggregator) loadDirectory(ctx context.Context) ([]directory.User, []directory.Team, error) {
	users, err := a.dir.AllUsers(ctx)
	if err != nil {
		return nil, nil, err
	}
	teams, err := a.dir.AllTeams(ctx)
	if err != nil {
		return nil, nil, err
	}
	return users, teams, nil
}

// statsYear extracts the calendar year from a YYYY-MM-DD key; cohort labels
// shift with it.
func statsYear(dateKey string) int {
	y, _ := strconv.Atoi(dateKey[:4])
	return y
}

// buildDayStats is the pure grouping step, shared with the monthly
// calculator's legacy-bucket path.
func buildDayStats(dateKey string, logs []Log, users []directory.User, teams []directory.Team) DayStats {
	present := make(map[string]bool)
	for _, l := range logs {
		if l.Type == TypeEntry {
			present[l.UID] = true
		}
	}

	teamNames := make(map[string]string, len(teams))
	for _, t := range teams {
		teamNames[t.ID] = t.Name
	}

	byTeam := make(map[string][]directory.User)
	for _, u := range users {
		teamID := u.TeamID
		if teamID == "" {
			teamID = UnassignedTeamID
		}
		byTeam[teamID] = append(byTeam[teamID], u)
	}

	teamIDs := make([]string, 0, len(byTeam))
	for id := range byTeam {
		teamIDs = append(teamIDs, id)
	}
	sort.Strings(teamIDs)

	stats := DayStats{Date: dateKey}
	for _, teamID := range teamIDs {
		byGrade := make(map[int][]directory.User)
		for _, u := range byTeam[teamID] {
			byGrade[u.Grade] = append(byGrade[u.Grade], u)
		}
		grades := make([]int, 0, len(byGrade))
		for g := range byGrade {
			grades = append(grades, g)
		}
		// Newest cohort first; fixed tie-break for deterministic output.
		sort.Sort(sort.Reverse(sort.IntSlice(grades)))

		ts := TeamStats{TeamID: teamID, TeamName: teamNames[teamID]}
		for _, g := range grades {
			members := byGrade[g]
			sort.Slice(members, func(i, j int) bool { return members[i].UID < members[j].UID })
			bucket := GradeBucket{Grade: g, Label: grade.Label(g, statsYear(dateKey)), Total: len(members)}
			for _, u := range members {
				isPresent := present[u.UID]
				if isPresent {
					bucket.Count++
				}
				bucket.Members = append(bucket.Members, Member{User: u, Present: isPresent})
			}
			stats.TotalCount += bucket.Count
			ts.Grades = append(ts.Grades, bucket)
		}
		stats.Teams = append(stats.Teams, ts)
	}
	return stats
}
