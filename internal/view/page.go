package view

import (
	"embed"
	"html/template"
	"strings"

	"foresight/internal/appstate"
	"foresight/internal/models"
	"foresight/internal/service/analysis"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the embedded page templates.
func Templates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

type SessionItem struct {
	ID       string
	Name     string
	Status   string
	Files    int
	Selected bool
}

// HomePage is the data behind the main page.
type HomePage struct {
	DisplayName string
	Search      string
	Sessions    []SessionItem
	Selected    *models.Session
	View        appstate.View
	Dashboard   *DashboardView
	Loading     bool
	Error       string
	Chat        []ChatLine
	Files       []analysis.FileLink
	CSRFField   string
	CSRFToken   string
}

// Home assembles the main page from the user's state. chat and files are only
// used by the chat view and may be nil otherwise.
func Home(st appstate.State, search string, chat []models.ChatMessage, files []analysis.FileLink) HomePage {
	page := HomePage{
		DisplayName: "User",
		Search:      search,
		Selected:    st.Selected,
		View:        st.View,
		Loading:     st.DashboardLoading,
		Error:       st.Error,
		Files:       files,
	}
	if st.User != nil && st.User.DisplayName != "" {
		page.DisplayName = st.User.DisplayName
	}
	if page.View == "" {
		page.View = appstate.ViewAbout
	}
	needle := strings.ToLower(strings.TrimSpace(search))
	for _, s := range st.Sessions {
		if needle != "" && !strings.Contains(strings.ToLower(s.Name), needle) {
			continue
		}
		page.Sessions = append(page.Sessions, SessionItem{
			ID:       s.ID,
			Name:     s.Name,
			Status:   string(s.Status),
			Files:    len(s.Files),
			Selected: st.Selected != nil && st.Selected.ID == s.ID,
		})
	}
	if page.View == appstate.ViewDashboard {
		page.Dashboard = Dashboard(st.Dashboard)
	}
	if page.View == appstate.ViewChat && st.Selected != nil {
		page.Chat = ChatLines(chat)
	}
	return page
}

// LoginPage is the data behind the sign-in form.
type LoginPage struct {
	Error    string
	Username string
	Register bool
}
