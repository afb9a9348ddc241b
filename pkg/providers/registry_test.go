package providers_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ogulcanaydogan/credit-guardian/pkg/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticProvider struct{ value float64 }

func (p staticProvider) Name() string { return "static" }

func (p staticProvider) FetchBalance(context.Context) (providers.Balance, error) {
	return providers.Balance{Value: p.value}, nil
}

func TestDefaultFactory_Names(t *testing.T) {
	f := providers.DefaultFactory()
	assert.Equal(t, []string{"aliyun", "openrouter", "tikhub", "uniapi", "volc", "wxrank"}, f.Names())
	assert.True(t, f.Known("volc"))
	assert.False(t, f.Known("openai"))
}

func TestFactory_NewUnknown(t *testing.T) {
	f := providers.DefaultFactory()
	_, err := f.New("nonexistent", "key", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, providers.ErrUnknownProvider))
}

func TestFactory_MalformedSignedCredential(t *testing.T) {
	f := providers.DefaultFactory()
	for _, name := range []string{"volc", "aliyun"} {
		t.Run(name, func(t *testing.T) {
			_, err := f.New(name, "no-separator", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "credential must be")
		})
	}
}

func TestFactory_Register(t *testing.T) {
	f := providers.NewFactory()
	f.Register("static", func(string, *providers.Client) (providers.Provider, error) {
		return staticProvider{value: 3}, nil
	})

	p, err := f.New("static", "", nil)
	require.NoError(t, err)
	b, err := p.FetchBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3.0, b.Value)
}
