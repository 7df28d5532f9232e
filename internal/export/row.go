package export

import (
	"strconv"
	"strings"

	"github.com/kurihiro0119/github-repo-export/internal/domain"
)

// column is a fixed report column; quoted columns hold free text
type column struct {
	name   string
	quoted bool
}

var fixedColumns = []column{
	{"repo_name", true},
	{"url", true},
	{"description", true},
	{"visibility", true},
	{"archived", false},
	{"is_template", false},
	{"forks", false},
	{"from_template", true},
	{"admin_teams", true},
	{"admin_users", true},
}

// FixedColumnCount is the number of columns preceding the custom properties
var FixedColumnCount = len(fixedColumns)

// Row is one encoded report line, one entry per column
type Row []string

// Line joins the fields into a newline-terminated CSV line
func (r Row) Line() string {
	return strings.Join(r, ",") + "\n"
}

// Quote escapes embedded quotes by doubling them and wraps the value in quotes
func Quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Header builds the header row: the fixed columns followed by each property name
func Header(properties []string) Row {
	row := make(Row, 0, len(fixedColumns)+len(properties))
	for _, c := range fixedColumns {
		if c.quoted {
			row = append(row, Quote(c.name))
		} else {
			row = append(row, c.name)
		}
	}
	for _, p := range properties {
		row = append(row, Quote(p))
	}
	return row
}

// Flatten builds the report row for one repository.
// Team and user names are comma-joined inside a single field, so a name that
// itself contains a comma cannot be told apart when reading the report back.
func Flatten(repo *domain.RepositorySummary, details *domain.RepositoryDetails, properties []string) Row {
	row := make(Row, 0, len(fixedColumns)+len(properties))
	row = append(row,
		Quote(repo.Name),
		Quote(repo.URL),
		Quote(repo.Description),
		Quote(repo.Visibility),
		strconv.FormatBool(repo.Archived),
		strconv.FormatBool(repo.IsTemplate),
		strconv.Itoa(repo.ForksCount),
		Quote(repo.TemplateFullName),
		Quote(strings.Join(details.AdminTeams(), ",")),
		Quote(strings.Join(details.AdminUsers(), ",")),
	)
	for _, p := range properties {
		value, _ := details.Property(p)
		row = append(row, Quote(value))
	}
	return row
}
