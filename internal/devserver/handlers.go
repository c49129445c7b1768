package devserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/blindbox/internal/errs"
	"github.com/and161185/blindbox/internal/limiter"
	"github.com/and161185/blindbox/internal/model"
)

const (
	refreshCookie      = "refresh_token"
	headerRefreshToken = "X-Refresh-Token"
)

type loginBody struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type logoutBody struct {
	RefreshToken string `json:"refreshToken"`
}

type addBody struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"  binding:"gte=1"`
}

type quantityBody struct {
	Quantity int `json:"quantity" binding:"gte=1"`
}

func (s *Server) login(c *gin.Context) {
	var in loginBody
	if err := c.ShouldBindJSON(&in); err != nil {
		abortMessage(c, http.StatusBadRequest, "email and password are required")
		return
	}
	ctx := c.Request.Context()
	key := limiter.NewKey(in.Email, c.ClientIP())

	wait, err := s.lim.Check(ctx, key)
	if err != nil {
		s.log.Error("limiter check", zap.Error(err))
		abortMessage(c, http.StatusInternalServerError, "internal")
		return
	}
	if wait > 0 {
		c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
		abortMessage(c, http.StatusTooManyRequests, "too many attempts, try again later")
		return
	}

	uid, err := s.mem.authenticate(in.Email, in.Password)
	if err != nil {
		if _, ferr := s.lim.Failed(ctx, key); ferr != nil {
			s.log.Warn("limiter failure record", zap.Error(ferr))
		}
		// 400: clients treat 401 as an expired session.
		abortMessage(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.lim.Succeeded(ctx, key); err != nil {
		s.log.Warn("limiter reset", zap.Error(err))
	}

	access, _, err := s.tokens.issueAccess(uid)
	if err != nil {
		abortMessage(c, http.StatusInternalServerError, "internal")
		return
	}
	refresh, err := newRefreshToken()
	if err != nil {
		abortMessage(c, http.StatusInternalServerError, "internal")
		return
	}
	s.mem.putRefresh(refresh, uid, s.now().Add(s.refreshTTL))
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookie, refresh, int(s.refreshTTL.Seconds()), "/accounts", "", false, true)
	c.JSON(http.StatusOK, model.Tokens{AccessToken: access, RefreshToken: refresh})
}

func (s *Server) refreshToken(c *gin.Context) {
	tok, err := c.Cookie(refreshCookie)
	if err != nil || tok == "" {
		tok = c.GetHeader(headerRefreshToken)
	}
	if tok == "" {
		abortMessage(c, http.StatusUnauthorized, "refresh token not found")
		return
	}
	uid, ok := s.mem.lookupRefresh(tok, s.now())
	if !ok {
		abortMessage(c, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	access, _, err := s.tokens.issueAccess(uid)
	if err != nil {
		abortMessage(c, http.StatusInternalServerError, "internal")
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": access})
}

func (s *Server) logout(c *gin.Context) {
	var in logoutBody
	_ = c.ShouldBindJSON(&in)
	if in.RefreshToken == "" {
		in.RefreshToken, _ = c.Cookie(refreshCookie)
	}
	if in.RefreshToken != "" {
		s.mem.dropRefresh(in.RefreshToken)
	}
	c.SetCookie(refreshCookie, "", -1, "/accounts", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (s *Server) me(c *gin.Context) {
	u, err := s.mem.user(userID(c))
	if err != nil {
		abortMessage(c, http.StatusNotFound, "account not found")
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) updateMe(c *gin.Context) {
	var p model.ProfilePatch
	if err := c.ShouldBindJSON(&p); err != nil {
		abortMessage(c, http.StatusBadRequest, "invalid profile fields")
		return
	}
	u, err := s.mem.patchUser(userID(c), p)
	if err != nil {
		abortMessage(c, http.StatusNotFound, "account not found")
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) listBlindBoxes(c *gin.Context) {
	c.JSON(http.StatusOK, s.mem.listProducts())
}

func (s *Server) getBlindBox(c *gin.Context) {
	p, err := s.mem.product(c.Param("slug"), c.Query("id"))
	if err != nil {
		abortMessage(c, http.StatusNotFound, "blind box not found")
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) getCart(c *gin.Context) {
	c.JSON(http.StatusOK, s.mem.cart(userID(c)))
}

func (s *Server) addToCart(c *gin.Context) {
	var in addBody
	if err := c.ShouldBindJSON(&in); err != nil {
		abortMessage(c, http.StatusBadRequest, "productId and a positive quantity are required")
		return
	}
	cart, err := s.mem.addToCart(userID(c), in.ProductID, in.Quantity)
	s.writeCart(c, cart, err)
}

func (s *Server) setQuantity(c *gin.Context) {
	var in quantityBody
	if err := c.ShouldBindJSON(&in); err != nil {
		abortMessage(c, http.StatusBadRequest, "a positive quantity is required")
		return
	}
	cart, err := s.mem.setQuantity(userID(c), c.Param("productId"), in.Quantity)
	s.writeCart(c, cart, err)
}

func (s *Server) removeFromCart(c *gin.Context) {
	cart, err := s.mem.removeFromCart(userID(c), c.Param("productId"))
	s.writeCart(c, cart, err)
}

// clearCart answers with an empty body.
func (s *Server) clearCart(c *gin.Context) {
	s.mem.clearCart(userID(c))
	c.Status(http.StatusOK)
}

func (s *Server) writeCart(c *gin.Context, cart model.Cart, err error) {
	var se stockError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, cart)
	case errors.As(err, &se):
		abortMessage(c, http.StatusBadRequest, se.Error())
	case errors.Is(err, errs.ErrNotFound):
		abortMessage(c, http.StatusNotFound, "product not found")
	case errors.Is(err, errNotInCart):
		abortMessage(c, http.StatusNotFound, err.Error())
	default:
		s.log.Error("cart", zap.Error(err))
		abortMessage(c, http.StatusInternalServerError, "internal")
	}
}

func userID(c *gin.Context) uuid.UUID {
	id, _ := UserIDFromCtx(c.Request.Context())
	return id
}
