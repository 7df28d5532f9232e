package domain

// RepositorySummary represents a repository as returned by organization enumeration
type RepositorySummary struct {
	Name        string
	URL         string
	Description string
	Visibility  string
	Archived    bool
	IsTemplate  bool
	ForksCount  int
	// TemplateFullName is empty when the repository was not generated from a template
	TemplateFullName string
}

// PropertyValue pairs a custom property name with its value.
// Null values are kept as an empty string.
type PropertyValue struct {
	Name  string
	Value string
}

// TeamPermission pairs a team with its permission level on a repository
type TeamPermission struct {
	Team       string
	Permission string // "admin", "maintain", "push", "triage", "pull"
}

// CollaboratorPermission pairs a user login with its permission flags on a repository
type CollaboratorPermission struct {
	Login    string
	Admin    bool
	Maintain bool
	Push     bool
	Triage   bool
	Pull     bool
}

// RepositoryDetails is the joined result of the auxiliary fetches for one repository
type RepositoryDetails struct {
	Properties    []PropertyValue
	Teams         []TeamPermission
	Collaborators []CollaboratorPermission
}

// AdminTeams returns the names of teams holding exactly the "admin" permission
func (d *RepositoryDetails) AdminTeams() []string {
	var names []string
	for _, t := range d.Teams {
		if t.Permission == "admin" {
			names = append(names, t.Team)
		}
	}
	return names
}

// AdminUsers returns the logins of collaborators with the admin flag set
func (d *RepositoryDetails) AdminUsers() []string {
	var logins []string
	for _, c := range d.Collaborators {
		if c.Admin {
			logins = append(logins, c.Login)
		}
	}
	return logins
}

// Property looks up a property value by exact name
func (d *RepositoryDetails) Property(name string) (string, bool) {
	for _, p := range d.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}
