package alerts

import "time"

type dingTalkMarkdown struct {
	MsgType  string `json:"msgtype"`
	Markdown struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	} `json:"markdown"`
}

func formatDingTalk(a Alert, _ string, _ time.Time) any {
	var p dingTalkMarkdown
	p.MsgType = "markdown"
	switch a := a.(type) {
	case BalanceAlert:
		p.Markdown.Title = balanceTitle
		p.Markdown.Text = markdownList(balanceTitle, balanceLines(a))
	case SubscriptionAlert:
		p.Markdown.Title = subscriptionTitle
		p.Markdown.Text = markdownList(subscriptionTitle, subscriptionLines(a))
	case CustomAlert:
		p.Markdown.Title = a.Title
		p.Markdown.Text = "### " + a.Title + "\n\n" + a.Content
	default:
		return nil
	}
	return p
}
