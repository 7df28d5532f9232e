package domain

// Summary represents aggregated figures for the repositories exported by a run
type Summary struct {
	Org               string         `json:"org"`
	TotalRepos        int            `json:"total_repos"`
	ByVisibility      map[string]int `json:"by_visibility"`
	Archived          int            `json:"archived"`
	Templates         int            `json:"templates"`
	FromTemplate      int            `json:"from_template"`
	TotalForks        int64          `json:"total_forks"`
	WithoutAdminTeams int            `json:"without_admin_teams"`
	WithoutAdminUsers int            `json:"without_admin_users"`
	PropertyCoverage  map[string]int `json:"property_coverage"`
	SkippedRepos      []string       `json:"skipped_repos,omitempty"`
}
