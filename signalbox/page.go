package signalbox

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/gin-gonic/gin"
	"nyiyui.ca/hato/interlocking/interlock"
	"nyiyui.ca/hato/interlocking/layout"
)

//go:embed index.html
var templates embed.FS

func parseTemplates() *template.Template {
	return template.Must(template.New("index.html").Funcs(sprig.FuncMap()).Funcs(template.FuncMap{
		"leverName": func(ls []interlock.Lever, id interlock.LeverID) string {
			for _, l := range ls {
				if l.ID == id {
					return l.Comment
				}
			}
			return ""
		},
	}).ParseFS(templates, "index.html"))
}

type page struct {
	Now      time.Time
	Levers   []interlock.Lever
	Buttons  []interlock.Button
	Routes   []interlock.Route
	Switches []layout.Track
	Pending  map[interlock.RouteID][]interlock.RouteID
}

func (s *Server) handleIndex(c *gin.Context) {
	p := page{
		Now:     time.Now(),
		Levers:  s.m.Levers(),
		Buttons: s.m.Buttons(),
		Pending: s.m.Pending(),
	}
	for _, r := range s.m.Routes() {
		if r.Active {
			p.Routes = append(p.Routes, r)
		}
	}
	for _, t := range s.m.Layout().Tracks() {
		if t.Kind.IsSwitch() {
			p.Switches = append(p.Switches, t)
		}
	}
	c.HTML(http.StatusOK, "index.html", p)
}
