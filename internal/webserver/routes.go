package webserver

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fleetdesk/console/internal/accesscontrol"
	"github.com/fleetdesk/console/internal/apiclient"
	"github.com/fleetdesk/console/internal/navigation"
	"github.com/fleetdesk/console/internal/session"
)

type AuthInfoRes struct {
	Username    string   `json:"username"`
	DisplayName string   `json:"displayName"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	ExpiresAt   int64    `json:"expiresAt"`
}

func authInfo(user *session.User) AuthInfoRes {
	return AuthInfoRes{
		Username:    user.Username,
		DisplayName: user.DisplayName(),
		Roles:       user.Roles,
		Permissions: user.Permissions,
		ExpiresAt:   user.TokenExp,
	}
}

type unauthorizedResponse struct {
	Error string `json:"error"`
}

type loginPageRes struct {
	Authenticated bool   `json:"authenticated"`
	Redirect      string `json:"redirect,omitempty"`
}

type loginReq struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	Redir    string `json:"redir" form:"redir"`
}

func loginRedirectURL(redir string) string {
	if redir == "" {
		return navigation.LoginPath
	}
	return navigation.LoginPath + "?redir=" + url.QueryEscape(redir)
}

// errorStatus is the status a normalized error is answered with. Business failures came back as 2xx
// from the backend, but they are still failures for whoever called us.
func errorStatus(apiErr *apiclient.Error) int {
	if apiErr.Business() {
		return http.StatusUnprocessableEntity
	}
	if apiErr.Status < 400 || apiErr.Status > 599 {
		return http.StatusInternalServerError
	}
	return apiErr.Status
}

func (w *Webserver) loginPageRouteHandler(c echo.Context) error {
	redir := c.QueryParam("redir")

	if w.session.IsAuthenticated() {
		if !accesscontrol.VerifyRedirectPath(redir) {
			redir = navigation.DashboardPath
		}
		w.router.Visit(redir)
		return c.Redirect(http.StatusFound, redir)
	}

	w.router.Visit(navigation.LoginPath)

	return c.JSON(http.StatusOK, loginPageRes{
		Authenticated: false,
		Redirect:      redir,
	})
}

func (w *Webserver) loginRouteHandler(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, unauthorizedResponse{
			Error: "Invalid login request",
		})
	}

	if req.Redir == "" {
		req.Redir = c.QueryParam("redir")
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, unauthorizedResponse{
			Error: "Username and password are required",
		})
	}

	// A 401 from the backend here means bad credentials, it must not bounce us back to login again
	w.router.Visit(navigation.LoginPath)

	_, err := w.session.Login(c.Request().Context(), apiclient.Credentials{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		apiErr := apiclient.AsError(err)
		w.logger.Info("login failed",
			zap.String("username", req.Username),
			zap.Int("status", apiErr.Status),
			zap.Int("code", apiErr.Code),
			zap.String("message", apiErr.Message),
		)
		return c.JSON(errorStatus(apiErr), apiErr)
	}

	user := w.session.User()
	if user == nil {
		// Lost to a concurrent logout or 401
		return c.JSON(http.StatusUnauthorized, unauthorizedResponse{
			Error: "Unauthorized",
		})
	}

	if accesscontrol.VerifyRedirectPath(req.Redir) {
		w.router.Visit(req.Redir)
		return c.Redirect(http.StatusFound, req.Redir)
	}

	w.router.Visit(navigation.DashboardPath)

	return c.JSON(http.StatusOK, authInfo(user))
}

func (w *Webserver) logoutRouteHandler(c echo.Context) error {
	if err := w.session.Logout(c.Request().Context()); err != nil {
		w.logger.Warn("couldn't fully clear the local session", zap.Error(err))
	}
	return c.Redirect(http.StatusFound, navigation.LoginPath)
}

func (w *Webserver) authInfoRouteHandler(c echo.Context) error {
	if w.session.IsLoading() {
		return c.JSON(http.StatusServiceUnavailable, unauthorizedResponse{
			Error: "Session is still loading",
		})
	}

	if !w.session.Validate(c.Request().Context()) {
		return c.JSON(http.StatusUnauthorized, unauthorizedResponse{
			Error: "Unauthorized",
		})
	}

	user := w.session.User()
	if user == nil {
		return c.JSON(http.StatusUnauthorized, unauthorizedResponse{
			Error: "Unauthorized",
		})
	}

	return c.JSON(http.StatusOK, authInfo(user))
}

// requireSession guards the /api routes: logged out operators are sent to the login screen,
// logged in ones still have to pass the route ACLs.
func (w *Webserver) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if w.session.IsLoading() {
			return c.JSON(http.StatusServiceUnavailable, unauthorizedResponse{
				Error: "Session is still loading",
			})
		}

		req := c.Request()
		path := req.URL.Path

		var user *session.User
		if w.session.Validate(req.Context()) {
			user = w.session.User()
		}
		if user == nil {
			w.router.Visit(navigation.LoginPath)
			return c.Redirect(http.StatusFound, loginRedirectURL(req.URL.RequestURI()))
		}

		if err := accesscontrol.CheckAccess(w.conf, user.Username, user.Roles, path); err != nil {
			w.logger.Warn(err.Error())
			return c.JSON(http.StatusForbidden, unauthorizedResponse{
				Error: fmt.Sprintf("%s is not allowed to access %s", user.Username, path),
			})
		}

		w.router.Visit(path)

		return next(c)
	}
}
