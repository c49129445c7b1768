package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/blindbox/internal/devserver"
	"github.com/and161185/blindbox/internal/errs"
	"github.com/and161185/blindbox/internal/model"
)

func init() { gin.SetMode(gin.TestMode) }

type harness struct {
	t   *testing.T
	url string
	dir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	srv, err := devserver.New(devserver.Config{JWTKey: []byte("cli-test-key")}, zaptest.NewLogger(t))
	require.NoError(t, err)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return &harness{t: t, url: hs.URL, dir: filepath.Join(t.TempDir(), "bb")}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	root, cleanup := newRootCmd()
	defer cleanup()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--api-url", h.url, "--storage-dir", h.dir}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) cart(args ...string) cartView {
	h.t.Helper()
	out, err := h.run(append([]string{"cart"}, args...)...)
	require.NoError(h.t, err)
	var v cartView
	require.NoError(h.t, json.Unmarshal([]byte(out), &v))
	return v
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("version")
	require.NoError(t, err)
	require.Equal(t, "bb dev (unknown)\n", out)
}

func TestLoginShopLogout(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("login", "-e", devserver.DemoEmail, "-p", devserver.DemoPassword)
	require.NoError(t, err)
	var sess model.Session
	require.NoError(t, json.Unmarshal([]byte(out), &sess))
	require.True(t, sess.LoggedIn)
	require.False(t, sess.Expired)

	out, err = h.run("whoami")
	require.NoError(t, err)
	var u model.User
	require.NoError(t, json.Unmarshal([]byte(out), &u))
	require.Equal(t, devserver.DemoEmail, u.Email)

	out, err = h.run("profile", "set", "--name", "Box Hunter")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &u))
	require.Equal(t, "Box Hunter", u.Name)

	out, err = h.run("products")
	require.NoError(t, err)
	var ps []model.Product
	require.NoError(t, json.Unmarshal([]byte(out), &ps))
	require.NotEmpty(t, ps)

	out, err = h.run("product", ps[0].Slug, "--id", ps[0].ID)
	require.NoError(t, err)
	var p model.Product
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	require.Equal(t, ps[0].Name, p.Name)

	v := h.cart("add", "bb-001", "-q", "2")
	require.Equal(t, 2, v.ItemCount)
	require.Equal(t, "25.00", v.Total)

	v = h.cart("set", "bb-001", "-q", "1")
	require.Equal(t, 1, v.ItemCount)

	v = h.cart()
	require.Equal(t, 1, v.ItemCount)

	v = h.cart("rm", "bb-001")
	require.Zero(t, v.ItemCount)
	require.NotNil(t, v.Cart)

	v = h.cart("clear")
	require.Nil(t, v.Cart)

	out, err = h.run("logout")
	require.NoError(t, err)
	require.Equal(t, "logged out\n", out)

	_, err = h.run("whoami")
	require.ErrorIs(t, err, errs.ErrAuthFailed)
}

func TestCart_FailurePrintsLastKnownState(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("login", "-e", devserver.DemoEmail, "-p", devserver.DemoPassword)
	require.NoError(t, err)
	h.cart("add", "bb-001")

	out, err := h.run("cart", "add", "bb-006", "-q", "5")
	require.ErrorIs(t, err, errs.ErrRejected)
	var v cartView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	require.Equal(t, 1, v.ItemCount, "cart restored from snapshot is kept")
	require.Equal(t, "only 2 left in stock", v.Error)
}

func TestLogFileStaysOutOfStdout(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("--log-level", "debug", "products")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(h.dir, "bb.log"))
	require.NoError(t, err)
}
