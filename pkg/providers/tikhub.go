package providers

import "context"

const tikHubURL = "https://api.tikhub.dev/api/v1/tikhub/user/get_user_info"

// TikHub reports the account balance from the user info endpoint.
type TikHub struct {
	apiKey string
	client *Client
	ep     endpoint
}

// NewTikHub creates a TikHub adapter.
func NewTikHub(apiKey string, client *Client, opts ...Option) *TikHub {
	return &TikHub{apiKey: apiKey, client: client, ep: applyOptions(tikHubURL, opts)}
}

func (p *TikHub) Name() string { return "tikhub" }

func (p *TikHub) FetchBalance(ctx context.Context) (Balance, error) {
	doc, err := p.client.getJSON(ctx, p.Name(), p.ep.baseURL, map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	})
	if err != nil {
		return Balance{}, err
	}
	v, err := firstNumber(p.Name(), doc, []Accessor{
		Path("user_data", "balance"),
		Path("data", "balance"),
		Path("balance"),
	})
	if err != nil {
		return Balance{}, err
	}
	return Balance{Value: v, Currency: "USD"}, nil
}
