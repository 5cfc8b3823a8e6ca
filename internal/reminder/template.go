package reminder

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"corpdesk/internal/compliance"
	addr "corpdesk/pkg/email"
)

var reminderTmpl = template.Must(template.New("reminder").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2933;">
  <p>Hello {{.Greeting}},</p>
  <p>This is a reminder that the <strong>{{.Label}}</strong> for <strong>{{.EntityName}}</strong> is due on <strong>{{.DueDate}}</strong> ({{.DaysLeft}} days from today).</p>
  {{- if .Description}}
  <p>{{.Description}}</p>
  {{- end}}
  {{- if .Jurisdiction}}
  <p>Jurisdiction: {{.Jurisdiction}}</p>
  {{- end}}
  <p>Please make sure the filing is completed before the due date to keep your company in good standing.</p>
  <p>You will not receive another reminder for this deadline for the next 30 days.</p>
</body>
</html>
`))

type reminderView struct {
	Greeting     string
	Label        string
	EntityName   string
	DueDate      string
	DaysLeft     int
	Description  string
	Jurisdiction string
}

const humanDate = "January 2, 2006"

func subjectFor(c compliance.Candidate) string {
	return fmt.Sprintf("Reminder: %s for %s due %s",
		c.Deadline.Type.Label(), c.Entity.Name, c.Deadline.DueDate.Format(humanDate))
}

func renderReminder(c compliance.Candidate, now time.Time) (string, error) {
	days := int(c.Deadline.DueDate.Sub(compliance.DateOf(now)).Hours() / 24)
	view := reminderView{
		Greeting:     addr.GreetingName(c.Entity.OwnerName, c.Entity.OwnerEmail),
		Label:        c.Deadline.Type.Label(),
		EntityName:   c.Entity.Name,
		DueDate:      c.Deadline.DueDate.Format(humanDate),
		DaysLeft:     days,
		Description:  c.Deadline.Description,
		Jurisdiction: string(c.Deadline.Jurisdiction),
	}
	var buf bytes.Buffer
	if err := reminderTmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render reminder: %w", err)
	}
	return buf.String(), nil
}
