package export

import (
	"bytes"
	"html/template"
	"strconv"
	"strings"
	"time"

	"madcrm/api/internal/projector"
)

// ReportData is what the organization report template renders.
type ReportData struct {
	Organization projector.PartnerView
	Mous         []MouRow
	GeneratedAt  time.Time
}

type MouRow struct {
	ID                  int64
	Status              string
	Signed              bool
	SignDate            *time.Time
	StartDate           *time.Time
	EndDate             *time.Time
	URL                 *string
	ConfirmedChildCount *int64
	CreatedAt           time.Time
}

var reportFuncs = template.FuncMap{
	"date": func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.Format("02 Jan 2006")
	},
	"datetime": func(t time.Time) string {
		return t.Format("02 Jan 2006 15:04")
	},
	"str": func(s *string) string {
		if s == nil || *s == "" {
			return "-"
		}
		return *s
	},
	"num": func(n *int64) string {
		if n == nil {
			return "-"
		}
		return strconv.FormatInt(*n, 10)
	},
	"yesno": func(b *bool) string {
		switch {
		case b == nil:
			return "-"
		case *b:
			return "Yes"
		default:
			return "No"
		}
	},
	"join": strings.Join,
	"label": func(s string) string {
		return strings.ReplaceAll(s, "_", " ")
	},
}

var reportTemplate = template.Must(template.New("organization-report").Funcs(reportFuncs).Parse(organizationReportTemplate))

// RenderReportHTML renders the organization report.
func RenderReportHTML(data ReportData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const organizationReportTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Organization.PartnerName}} | Organization report</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; color: #222; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #e63946; padding-bottom: 0.5rem; }
    h2 { margin-top: 2rem; font-size: 1.1em; text-transform: uppercase; color: #555; }
    table { width: 100%; border-collapse: collapse; font-size: 0.9em; }
    th, td { text-align: left; padding: 4px 8px; border-bottom: 1px solid #eee; vertical-align: top; }
    th { width: 35%; color: #555; }
    .meta { color: #666; font-size: 0.85em; }
    .active { color: #2a9d8f; font-weight: bold; }
  </style>
</head>
<body>
  {{with .Organization}}
  <h1>{{.PartnerName}}</h1>
  <p class="meta">{{.AddressLine1}}{{if .AddressLine2}}, {{str .AddressLine2}}{{end}} | {{str .CityName}}, {{str .StateName}} {{num .Pincode}}</p>

  <h2>Organization</h2>
  <table>
    <tr><th>Conversion stage</th><td>{{label (str .ConversionStage)}}</td></tr>
    <tr><th>Current status</th><td>{{label (str .CurrentStatus)}}</td></tr>
    <tr><th>Lead source</th><td>{{str .LeadSource}}</td></tr>
    <tr><th>School type</th><td>{{str .SchoolType}}</td></tr>
    <tr><th>Affiliation</th><td>{{str .PartnerAffiliationType}}</td></tr>
    <tr><th>Classes</th><td>{{if .Classes}}{{join .Classes ", "}}{{else}}-{{end}}</td></tr>
    <tr><th>Total children</th><td>{{num .TotalChildCount}}</td></tr>
    <tr><th>Potential children</th><td>{{num .PotentialChildCount}}</td></tr>
    <tr><th>Low income resource</th><td>{{yesno .LowIncomeResource}}</td></tr>
    <tr><th>Community officer</th><td>{{str .CoName}}</td></tr>
  </table>

  <h2>Point of contact</h2>
  <table>
    <tr><th>Name</th><td>{{str .PocName}}</td></tr>
    <tr><th>Designation</th><td>{{str .PocDesignation}}</td></tr>
    <tr><th>Contact</th><td>{{num .PocContact}}</td></tr>
    <tr><th>Email</th><td>{{str .PocEmail}}</td></tr>
    <tr><th>First contact</th><td>{{date .DateOfFirstContact}}</td></tr>
  </table>
  {{end}}

  <h2>MOU history</h2>
  {{if .Mous}}
  <table>
    <tr><th>Status</th><td>Signed</td><td>Start</td><td>End</td><td>Children</td><td>Document</td></tr>
    {{range .Mous}}
    <tr>
      <th>{{if eq .Status "active"}}<span class="active">active</span>{{else}}{{.Status}}{{end}}</th>
      <td>{{date .SignDate}}</td>
      <td>{{date .StartDate}}</td>
      <td>{{date .EndDate}}</td>
      <td>{{num .ConfirmedChildCount}}</td>
      <td>{{if .URL}}<a href="{{str .URL}}">view</a>{{else}}-{{end}}</td>
    </tr>
    {{end}}
  </table>
  {{else}}
  <p class="meta">No MOU recorded.</p>
  {{end}}

  <h2>Tracking history</h2>
  <table>
    {{range .Organization.TrackingHistory}}
    <tr><th>{{label .Stage}}</th><td>{{datetime .Timestamp}}</td></tr>
    {{else}}
    <tr><td>No stage changes recorded.</td></tr>
    {{end}}
  </table>

  <p class="meta">Generated {{datetime .GeneratedAt}}</p>
</body>
</html>`
