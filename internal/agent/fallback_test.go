package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medirun/medisuite/internal/inference"
)

// stubClient is a canned inference capability for agent tests.
type stubClient struct {
	text string
	err  error
}

func (c *stubClient) Infer(ctx context.Context, req inference.Request) (*inference.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.err != nil {
		return nil, c.err
	}
	return &inference.Response{Text: c.text}, nil
}

func TestResolveNilClientGoesLocal(t *testing.T) {
	v, path, err := Resolve(context.Background(), Fallback{},
		func(context.Context) (string, error) { return "remote", nil },
		func() (string, error) { return "local", nil },
	)

	require.NoError(t, err)
	assert.Equal(t, PathLocal, path)
	assert.Equal(t, "local", v)
}

func TestResolvePrefersRemote(t *testing.T) {
	fb := Fallback{Client: &stubClient{text: "ok"}}

	v, path, err := Resolve(context.Background(), fb,
		func(context.Context) (string, error) { return "remote", nil },
		func() (string, error) { return "local", nil },
	)

	require.NoError(t, err)
	assert.Equal(t, PathRemote, path)
	assert.Equal(t, "remote", v)
}

func TestResolveRemoteErrorFallsBack(t *testing.T) {
	fb := Fallback{Client: &stubClient{err: errors.New("boom")}}

	v, path, err := Resolve(context.Background(), fb,
		func(ctx context.Context) (string, error) {
			_, err := fb.Client.Infer(ctx, inference.Request{})
			return "", err
		},
		func() (string, error) { return "local", nil },
	)

	require.NoError(t, err)
	assert.Equal(t, PathLocal, path)
	assert.Equal(t, "local", v)
}

func TestResolvePropagatesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fb := Fallback{Client: &stubClient{text: "ok"}}

	_, _, err := Resolve(ctx, fb,
		func(rctx context.Context) (string, error) { return "", rctx.Err() },
		func() (string, error) { return "local", nil },
	)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveLocalErrorIsTerminal(t *testing.T) {
	wantErr := errors.New("no table")

	_, path, err := Resolve(context.Background(), Fallback{},
		nil,
		func() (string, error) { return "", wantErr },
	)

	assert.Equal(t, PathLocal, path)
	assert.ErrorIs(t, err, wantErr)
}
