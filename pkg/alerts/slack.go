package alerts

import (
	"fmt"
	"time"
)

type slackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

const (
	slackRed    = "#ff0000"
	slackOrange = "#ff9900"
)

// slackFormatter returns a formatter posting to channel (may be empty).
func slackFormatter(channel string) formatter {
	return func(a Alert, source string, now time.Time) any {
		att := slackAttachment{Footer: source, Ts: now.Unix()}
		switch a := a.(type) {
		case BalanceAlert:
			att.Color = slackRed
			att.Title = fmt.Sprintf("%s: %s", balanceTitle, a.ProjectName)
			att.Fields = toSlackFields(balanceLines(a))
		case SubscriptionAlert:
			att.Color = slackOrange
			if a.Level() == LevelCritical {
				att.Color = slackRed
			}
			att.Title = fmt.Sprintf("%s: %s", subscriptionTitle, a.Name)
			att.Fields = toSlackFields(subscriptionLines(a))
		case CustomAlert:
			att.Color = slackOrange
			att.Title = a.Title
			att.Text = a.Content
		default:
			return nil
		}
		return slackPayload{Channel: channel, Attachments: []slackAttachment{att}}
	}
}

func toSlackFields(lines [][2]string) []slackField {
	fields := make([]slackField, len(lines))
	for i, l := range lines {
		fields[i] = slackField{Title: l[0], Value: l[1], Short: true}
	}
	return fields
}
