package alerts

import "time"

type weComText struct {
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

type weComMarkdown struct {
	MsgType  string `json:"msgtype"`
	Markdown struct {
		Content string `json:"content"`
	} `json:"markdown"`
}

func formatWeCom(a Alert, _ string, _ time.Time) any {
	switch a := a.(type) {
	case BalanceAlert:
		return newWeComText(plainText(balanceTitle, balanceLines(a), ""))
	case SubscriptionAlert:
		return newWeComText(plainText(subscriptionTitle, subscriptionLines(a), ""))
	case CustomAlert:
		p := weComMarkdown{MsgType: "markdown"}
		p.Markdown.Content = "### " + a.Title + "\n\n" + a.Content
		return p
	}
	return nil
}

func newWeComText(text string) weComText {
	p := weComText{MsgType: "text"}
	p.Text.Content = text
	return p
}
