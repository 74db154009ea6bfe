package web

import (
	"embed"
	"html/template"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentdesk/frontend/internal/model/chat"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = map[string]*template.Template{
	"login":    parse("login.html"),
	"register": parse("register.html"),
	"chat":     parse("chat.html"),
}

func parse(page string) *template.Template {
	return template.Must(template.New("layout.html").Funcs(template.FuncMap{
		"uniqueTools": chat.UniqueTools,
	}).ParseFS(templateFS, "templates/layout.html", "templates/"+page))
}

// AuthPage is the data behind the login and register screens.
type AuthPage struct {
	Title   string
	Email   string
	Name    string
	Error   string
	Notice  string
	Backend string
}

// ChatPage is the data behind the chat screen.
type ChatPage struct {
	Title    string
	Snapshot chat.Snapshot
	Backend  string
}

// Render writes the named page. Unknown pages are a programming error.
func Render(w http.ResponseWriter, status int, page string, data any) {
	tmpl, ok := pages[page]
	if !ok {
		http.Error(w, "unknown page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := execute(w, tmpl, data); err != nil {
		log.Warn().Err(err).Str("page", page).Msg("[view] render failed")
	}
}

func execute(w io.Writer, tmpl *template.Template, data any) error {
	return tmpl.ExecuteTemplate(w, "layout.html", data)
}
