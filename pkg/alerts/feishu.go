package alerts

import "time"

type feishuText struct {
	MsgType string `json:"msg_type"`
	Content struct {
		Text string `json:"text"`
	} `json:"content"`
}

type feishuCard struct {
	MsgType string `json:"msg_type"`
	Card    struct {
		Header struct {
			Title struct {
				Tag     string `json:"tag"`
				Content string `json:"content"`
			} `json:"title"`
			Template string `json:"template"`
		} `json:"header"`
		Elements []feishuElement `json:"elements"`
	} `json:"card"`
}

type feishuElement struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

func formatFeishu(a Alert, source string, _ time.Time) any {
	switch a := a.(type) {
	case BalanceAlert:
		return newFeishuText(plainText(balanceTitle, balanceLines(a), source))
	case SubscriptionAlert:
		return newFeishuText(plainText(subscriptionTitle, subscriptionLines(a), source))
	case CustomAlert:
		var p feishuCard
		p.MsgType = "interactive"
		p.Card.Header.Title.Tag = "plain_text"
		p.Card.Header.Title.Content = a.Title
		p.Card.Header.Template = "orange"
		p.Card.Elements = []feishuElement{{Tag: "markdown", Content: a.Content}}
		return p
	}
	return nil
}

func newFeishuText(text string) feishuText {
	p := feishuText{MsgType: "text"}
	p.Content.Text = text
	return p
}
