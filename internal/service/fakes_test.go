package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/and161185/blindbox/internal/apiclient"
	"github.com/and161185/blindbox/internal/model"
	"github.com/and161185/blindbox/internal/repository"
)

// fakeDoer answers every request with respBody (decoded into out) or err.
type fakeDoer struct {
	mu       sync.Mutex
	calls    []apiclient.Request
	respBody string
	err      error
}

var _ Doer = (*fakeDoer)(nil)

func (f *fakeDoer) Do(_ context.Context, req apiclient.Request, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return f.err
	}
	if out == nil || f.respBody == "" {
		return nil
	}
	return json.Unmarshal([]byte(f.respBody), out)
}

func (f *fakeDoer) last() apiclient.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakeCreds struct {
	t        model.Tokens
	getErr   error
	clearErr error
	cleared  bool
}

var _ repository.CredentialRepository = (*fakeCreds)(nil)

func (f *fakeCreds) Get(context.Context) (model.Tokens, error) { return f.t, f.getErr }
func (f *fakeCreds) Save(_ context.Context, t model.Tokens) error {
	f.t = t
	return nil
}
func (f *fakeCreds) SetAccessToken(_ context.Context, a string) error {
	f.t.AccessToken = a
	return nil
}
func (f *fakeCreds) Clear(context.Context) error {
	f.cleared = true
	if f.clearErr != nil {
		return f.clearErr
	}
	f.t = model.Tokens{}
	return nil
}
