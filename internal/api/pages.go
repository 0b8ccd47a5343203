package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"foresight/internal/appstate"
	"foresight/internal/auth"
	"foresight/internal/logging"
	"foresight/internal/models"
	"foresight/internal/service/account"
	"foresight/internal/service/analysis"
	"foresight/internal/view"
)

const loginPath = "/login"

func (h *Handler) registerPages(router *gin.Engine) {
	router.GET(loginPath, h.loginPage)
	router.POST(loginPath, h.loginForm)

	pages := router.Group("/")
	pages.Use(h.auth.PageMiddleware(loginPath), h.auth.CSRFMiddleware())
	pages.GET("", h.homePage)
	pages.POST("logout", h.logoutForm)

	ui := pages.Group("/ui")
	ui.POST("/view", h.changeView)
	ui.POST("/sessions/:session_id/select", h.selectSessionForm)
	ui.POST("/sessions/:session_id/delete", h.deleteSessionForm)
	ui.POST("/chat", h.chatForm)

	// The body limit must be in place before the CSRF check reads the form.
	router.POST("/ui/analysis", h.limitBody(), h.auth.PageMiddleware(loginPath), h.auth.CSRFMiddleware(), h.analysisForm)
}

func (h *Handler) loginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login", view.LoginPage{})
}

func (h *Handler) loginForm(c *gin.Context) {
	page := view.LoginPage{
		Username: strings.TrimSpace(c.PostForm("username")),
		Register: c.PostForm("register") != "",
	}
	password := c.PostForm("password")
	ctx := c.Request.Context()

	var (
		user *models.User
		err  error
	)
	if page.Register {
		user, err = h.accounts.RegisterUser(ctx, page.Username, password, "")
	} else {
		user, err = h.accounts.Login(ctx, page.Username, password)
	}
	if err != nil {
		status := http.StatusUnauthorized
		page.Error = "Invalid username or password."
		switch {
		case errors.Is(err, account.ErrMissingFields):
			status = http.StatusBadRequest
			page.Error = "Username and password are required."
		case errors.Is(err, account.ErrUsernameTaken):
			status = http.StatusConflict
			page.Error = "That username is already taken."
		case !errors.Is(err, account.ErrInvalidCredentials):
			status = http.StatusInternalServerError
			page.Error = "Sign in failed. Please try again."
			logger := logging.FromContext(c)
			logger.Error().Err(err).Msg("page login failed")
		}
		c.HTML(status, "login", page)
		return
	}
	if _, err := h.signIn(c, user); err != nil {
		page.Error = "Sign in failed. Please try again."
		c.HTML(http.StatusInternalServerError, "login", page)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) logoutForm(c *gin.Context) {
	if userID, ok := auth.UserIDFromContext(c); ok {
		h.signOut(c, userID)
	}
	c.Redirect(http.StatusSeeOther, loginPath)
}

// pageState returns the user's store, loading the profile on first use.
func (h *Handler) pageState(ctx context.Context, userID string) (*appstate.Store, error) {
	st := h.states.Get(userID)
	if st.Snapshot().User == nil {
		user, err := h.accounts.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		st.Dispatch(appstate.UserLoaded{User: user})
	}
	return st, nil
}

func (h *Handler) homePage(c *gin.Context) {
	userID, _ := auth.UserIDFromContext(c)
	st, err := h.pageState(c.Request.Context(), userID)
	if err != nil {
		h.pageError(c, err)
		return
	}
	snap := st.Snapshot()
	var (
		chat  []models.ChatMessage
		files []analysis.FileLink
	)
	if snap.View == appstate.ViewChat && snap.Selected != nil {
		chat = h.chatHistoryFor(c, snap.Selected)
		files = h.analysis.FileLinks(c.Request.Context(), snap.Selected)
	}
	h.renderHome(c, http.StatusOK, snap, chat, files)
}

func (h *Handler) renderHome(c *gin.Context, status int, snap appstate.State, chat []models.ChatMessage, files []analysis.FileLink) {
	page := view.Home(snap, c.Query("q"), chat, files)
	page.CSRFField = h.auth.CSRFFormField()
	page.CSRFToken, _ = c.Cookie(h.auth.CSRFCookieName())
	c.HTML(status, "home", page)
}

// chatHistoryFor loads the upstream conversation for the session; failures show an empty chat.
func (h *Handler) chatHistoryFor(c *gin.Context, session *models.Session) []models.ChatMessage {
	key := models.SessionAnalysisKey(session)
	if key == "" {
		return nil
	}
	raw, err := h.dashboard.History(c.Request.Context(), key)
	if err != nil {
		logUpstream(c, err, "chat history request failed")
		return nil
	}
	return view.ChatMessages(raw)
}

func (h *Handler) changeView(c *gin.Context) {
	userID, _ := auth.UserIDFromContext(c)
	h.states.Get(userID).Dispatch(appstate.ViewChanged{View: appstate.ParseView(c.PostForm("view"))})
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) selectSessionForm(c *gin.Context) {
	userID, _ := auth.UserIDFromContext(c)
	st := h.states.Get(userID)
	if _, err := h.analysis.SelectSession(c.Request.Context(), userID, c.Param("session_id")); err != nil {
		logger := logging.FromContext(c)
		logger.Warn().Err(err).Str("user_id", userID).Str("session_id", c.Param("session_id")).Msg("select session failed")
		// Dashboard failures are already recorded by the service.
		if st.Snapshot().Error == "" {
			st.Dispatch(appstate.DashboardFailed{Err: "Could not open that analysis."})
		}
	}
	if st.Snapshot().View == appstate.ViewAbout {
		st.Dispatch(appstate.ViewChanged{View: appstate.ViewDashboard})
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) deleteSessionForm(c *gin.Context) {
	userID, _ := auth.UserIDFromContext(c)
	if err := h.analysis.DeleteSession(c.Request.Context(), userID, c.Param("session_id")); err != nil {
		logger := logging.FromContext(c)
		logger.Warn().Err(err).Str("user_id", userID).Str("session_id", c.Param("session_id")).Msg("delete session failed")
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// chatForm sends one message upstream and shows the reply next to the known history.
func (h *Handler) chatForm(c *gin.Context) {
	userID, _ := auth.UserIDFromContext(c)
	st, err := h.pageState(c.Request.Context(), userID)
	if err != nil {
		h.pageError(c, err)
		return
	}
	snap := st.Snapshot()
	message := strings.TrimSpace(c.PostForm("message"))
	if snap.Selected == nil || message == "" {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	if snap.View != appstate.ViewChat {
		snap = st.Dispatch(appstate.ViewChanged{View: appstate.ViewChat})
	}

	chat := h.chatHistoryFor(c, snap.Selected)
	chat = append(chat, models.ChatMessage{Role: models.ChatRoleUser, Text: message})
	reply := view.FailedReplyText
	raw, err := h.dashboard.SendMessage(c.Request.Context(), models.SessionAnalysisKey(snap.Selected), message)
	if err != nil {
		logUpstream(c, err, "chat message request failed")
	} else {
		reply = view.ReplyText(raw)
	}
	chat = append(chat, models.ChatMessage{Role: models.ChatRoleAI, Text: reply})
	files := h.analysis.FileLinks(c.Request.Context(), snap.Selected)
	h.renderHome(c, http.StatusOK, snap, chat, files)
}

func (h *Handler) analysisForm(c *gin.Context) {
	userID, _ := auth.UserIDFromContext(c)
	st, err := h.pageState(c.Request.Context(), userID)
	if err != nil {
		h.pageError(c, err)
		return
	}
	logger := logging.FromContext(c)
	fail := func(msg string, err error) {
		logger.Warn().Err(err).Str("user_id", userID).Msg("analysis form failed")
		st.Dispatch(appstate.DashboardFailed{Err: msg})
		c.Redirect(http.StatusSeeOther, "/")
	}

	if err := h.parseMultipart(c); err != nil {
		fail("The upload could not be read.", err)
		return
	}
	files, err := formUploads(c)
	if err != nil {
		fail("The upload could not be read.", err)
		return
	}
	data := startupData(c)
	if data.Name == "" {
		fail("Please enter the startup name.", analysis.ErrMissingName)
		return
	}
	st.Dispatch(appstate.ViewChanged{View: appstate.ViewDashboard})
	if _, err := h.analysis.SubmitAnalysis(c.Request.Context(), userID, st.Snapshot().Selected, data, files); err != nil {
		if msg, ok := batchMessage(err); ok {
			fail(msg, err)
			return
		}
		if isUpstream(err) {
			st.Dispatch(appstate.DashboardFailed{Err: upstreamMessage(err)})
			logger.Warn().Err(err).Str("user_id", userID).Msg("analysis form failed")
			c.Redirect(http.StatusSeeOther, "/")
			return
		}
		fail("Something went wrong while analysing the documents.", err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) pageError(c *gin.Context, err error) {
	if errors.Is(err, account.ErrNotFound) {
		// The account is gone; the token is useless.
		h.clearAuthCookies(c)
		c.Redirect(http.StatusSeeOther, loginPath)
		return
	}
	logger := logging.FromContext(c)
	logger.Error().Err(err).Msg("page failed")
	c.String(http.StatusInternalServerError, "internal server error")
}
