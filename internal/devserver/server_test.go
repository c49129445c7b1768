package devserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/blindbox/internal/apiclient"
	"github.com/and161185/blindbox/internal/cartstore"
	"github.com/and161185/blindbox/internal/errs"
	"github.com/and161185/blindbox/internal/limiter"
	"github.com/and161185/blindbox/internal/model"
	"github.com/and161185/blindbox/internal/repository/file"
	"github.com/and161185/blindbox/internal/service"
)

func init() { gin.SetMode(gin.TestMode) }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type rig struct {
	srv   *Server
	http  *httptest.Server
	clk   *clock
	creds *file.Store
	api   *apiclient.Client
	auth  *service.AuthServiceImpl
	cat   *service.CatalogServiceImpl
	cart  *cartstore.Store
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()
	clk := &clock{now: time.Now()}
	cfg.JWTKey = []byte("test-signing-key")
	cfg.Now = clk.Now
	srv, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	store := file.New(t.TempDir())
	api, err := apiclient.New(hs.URL, store, apiclient.WithHTTPClient(hs.Client()), apiclient.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return &rig{
		srv:   srv,
		http:  hs,
		clk:   clk,
		creds: store,
		api:   api,
		auth:  service.NewAuthService(api, store),
		cat:   service.NewCatalogService(api),
		cart:  cartstore.New(service.NewCartService(api), store),
	}
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
}

func TestEndToEnd_LoginBrowseAndShop(t *testing.T) {
	r := newRig(t, Config{})
	ctx := context.Background()

	_, err := r.auth.Login(ctx, DemoEmail, DemoPassword)
	require.NoError(t, err)

	me, err := r.auth.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, DemoName, me.Name)

	boxes, err := r.cat.ListBlindBoxes(ctx)
	require.NoError(t, err)
	require.Len(t, boxes, len(seedCatalog))

	detail, err := r.cat.GetBlindBoxFor(ctx, model.Product{ID: boxes[0].ID, Name: boxes[0].Name})
	require.NoError(t, err)
	require.Equal(t, boxes[0].ID, detail.ID)

	require.NoError(t, r.cart.FetchCartItems(ctx))
	require.NotNil(t, r.cart.Snapshot().Cart)
	require.Empty(t, r.cart.Snapshot().Cart.Items)

	require.NoError(t, r.cart.AddToCart(ctx, "bb-001", 2))
	require.NoError(t, r.cart.AddToCart(ctx, "bb-001", 1))
	st := r.cart.Snapshot()
	require.Len(t, st.Cart.Items, 1)
	require.Equal(t, 3, st.Cart.Items[0].CartQuantity)
	require.Equal(t, "37.5", st.Cart.TotalPrice.String())

	require.NoError(t, r.cart.UpdateQuantity(ctx, "bb-001", 1))
	require.Equal(t, 1, r.cart.Snapshot().Cart.ItemCount())

	err = r.cart.AddToCart(ctx, "bb-006", 3)
	require.ErrorIs(t, err, errs.ErrRejected)
	require.Equal(t, "only 2 left in stock", r.cart.Snapshot().Err)
	require.Equal(t, 1, r.cart.Snapshot().Cart.ItemCount())

	err = r.cart.RemoveFromCart(ctx, "bb-004")
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, r.cart.RemoveFromCart(ctx, "bb-001"))
	require.Empty(t, r.cart.Snapshot().Cart.Items)

	require.NoError(t, r.cart.AddToCart(ctx, "bb-002", 1))
	require.NoError(t, r.cart.ClearCart(ctx))
	require.Nil(t, r.cart.Snapshot().Cart)

	snap, err := r.creds.LoadCart(ctx)
	require.NoError(t, err)
	require.Nil(t, snap.Cart)
}

func TestEndToEnd_ExpiredAccessTokenIsRefreshed(t *testing.T) {
	r := newRig(t, Config{AccessTTL: time.Minute, RefreshTTL: time.Hour})
	ctx := context.Background()

	first, err := r.auth.Login(ctx, DemoEmail, DemoPassword)
	require.NoError(t, err)

	r.clk.Advance(2 * time.Minute)
	require.NoError(t, r.cart.FetchCartItems(ctx))

	stored, err := r.creds.Get(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first.AccessToken, stored.AccessToken)
	require.Equal(t, first.RefreshToken, stored.RefreshToken)
}

func TestEndToEnd_ExpiredRefreshTokenForcesLogout(t *testing.T) {
	r := newRig(t, Config{AccessTTL: time.Minute, RefreshTTL: 5 * time.Minute})
	ctx := context.Background()

	_, err := r.auth.Login(ctx, DemoEmail, DemoPassword)
	require.NoError(t, err)

	r.clk.Advance(10 * time.Minute)
	err = r.cart.FetchCartItems(ctx)
	require.ErrorIs(t, err, errs.ErrAuthFailed)
	require.Equal(t, "invalid refresh token", r.cart.Snapshot().Err)

	stored, err := r.creds.Get(ctx)
	require.NoError(t, err)
	require.True(t, stored.Empty())
}

func TestEndToEnd_LogoutRevokesRefreshToken(t *testing.T) {
	r := newRig(t, Config{})
	ctx := context.Background()

	tok, err := r.auth.Login(ctx, DemoEmail, DemoPassword)
	require.NoError(t, err)
	require.NoError(t, r.auth.Logout(ctx))

	req, _ := http.NewRequest(http.MethodPost, r.http.URL+"/accounts/refresh-token", nil)
	req.Header.Set(headerRefreshToken, tok.RefreshToken)
	resp, err := r.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEndToEnd_ProfileUpdate(t *testing.T) {
	r := newRig(t, Config{})
	ctx := context.Background()
	_, err := r.auth.Login(ctx, DemoEmail, DemoPassword)
	require.NoError(t, err)

	phone := "+1 555 0100"
	u, err := r.auth.UpdateMe(ctx, model.ProfilePatch{Phone: &phone})
	require.NoError(t, err)
	require.Equal(t, phone, u.Phone)
	require.Equal(t, DemoName, u.Name)
}

func TestLogin_BadPasswordAndLockout(t *testing.T) {
	r := newRig(t, Config{Limiter: limiter.NewMemory(limiter.Policy{Window: time.Minute, MaxFails: 2, BlockFor: time.Hour})})
	ctx := context.Background()

	_, err := r.auth.Login(ctx, DemoEmail, "wrong")
	require.ErrorIs(t, err, errs.ErrRejected)
	require.Equal(t, "invalid email or password", errs.Message(err))

	_, _ = r.auth.Login(ctx, DemoEmail, "wrong")
	_, err = r.auth.Login(ctx, DemoEmail, DemoPassword)
	var he *errs.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusTooManyRequests, he.Status)
}

func TestCart_RequiresBearer(t *testing.T) {
	r := newRig(t, Config{})
	resp, err := r.http.Client().Get(r.http.URL + "/cart")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "no bearer token", body["message"])
}

func TestClearAll_ReturnsEmptyBody(t *testing.T) {
	r := newRig(t, Config{})
	tok, err := r.auth.Login(context.Background(), DemoEmail, DemoPassword)
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodPost, r.http.URL+"/cart/clear-all", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp, err := r.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, b)
}

func TestMetricsAndHealth(t *testing.T) {
	r := newRig(t, Config{})
	_, err := r.cat.ListBlindBoxes(context.Background())
	require.NoError(t, err)

	resp, err := r.http.Client().Get(r.http.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = r.http.Client().Get(r.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	require.True(t, strings.Contains(string(b), `blindbox_devserver_requests_total{code="200",method="GET",route="/products/blind-boxes"} 1`))
}

func TestRecoverPanics(t *testing.T) {
	e := gin.New()
	e.Use(recoverPanics(zaptest.NewLogger(t)))
	e.GET("/panic", func(*gin.Context) { panic("oh no") })

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestBearerToken(t *testing.T) {
	cases := map[string]bool{"Bearer abc": true, "bearer abc": true, "Bearer ": false, "Basic x": false, "": false}
	for in, ok := range cases {
		_, got := bearerToken(in)
		require.Equal(t, ok, got, in)
	}
}
