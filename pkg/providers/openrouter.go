package providers

import (
	"context"
)

const openRouterURL = "https://openrouter.ai/api/v1/credits"

// OpenRouter reports total_credits minus total_usage.
type OpenRouter struct {
	apiKey string
	client *Client
	ep     endpoint
}

// NewOpenRouter creates an OpenRouter adapter.
func NewOpenRouter(apiKey string, client *Client, opts ...Option) *OpenRouter {
	return &OpenRouter{apiKey: apiKey, client: client, ep: applyOptions(openRouterURL, opts)}
}

func (p *OpenRouter) Name() string { return "openrouter" }

func (p *OpenRouter) FetchBalance(ctx context.Context) (Balance, error) {
	doc, err := p.client.getJSON(ctx, p.Name(), p.ep.baseURL, map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	})
	if err != nil {
		return Balance{}, err
	}

	total, err := firstNumber(p.Name(), doc, []Accessor{Path("data", "total_credits"), Path("total_credits")})
	if err != nil {
		return Balance{}, err
	}
	usage, err := firstNumber(p.Name(), doc, []Accessor{Path("data", "total_usage"), Path("total_usage")})
	if err != nil {
		return Balance{}, err
	}
	return Balance{Value: total - usage, Currency: "USD"}, nil
}
