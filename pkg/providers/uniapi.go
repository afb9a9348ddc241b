package providers

import "context"

const uniAPIURL = "https://api.uniapi.io/v1/billing/usage"

// UniAPI reports the usable balance in USD.
type UniAPI struct {
	apiKey string
	client *Client
	ep     endpoint
}

// NewUniAPI creates a UniAPI adapter.
func NewUniAPI(apiKey string, client *Client, opts ...Option) *UniAPI {
	return &UniAPI{apiKey: apiKey, client: client, ep: applyOptions(uniAPIURL, opts)}
}

func (p *UniAPI) Name() string { return "uniapi" }

func (p *UniAPI) FetchBalance(ctx context.Context) (Balance, error) {
	doc, err := p.client.getJSON(ctx, p.Name(), p.ep.baseURL+"?unit=usd", map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	})
	if err != nil {
		return Balance{}, err
	}
	if ok, _ := doc["success"].(bool); !ok {
		return Balance{}, newError(p.Name(), ErrBusiness, "API returned success=false")
	}
	v, err := firstNumber(p.Name(), doc, []Accessor{Path("data", "balance")})
	if err != nil {
		return Balance{}, err
	}
	return Balance{Value: v, Currency: "USD"}, nil
}
