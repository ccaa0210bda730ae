// Package signalbox serves the interlocking machine to UIs over HTTP.
//
//	GET  /                        HTML board
//	GET  /layout                  tracks
//	GET  /state                   machine snapshot, pending activations and point commands
//	GET  /levers/:id/routes       search routes from a lever (not stored)
//	POST /levers/:id/routes       search and store routes from a lever
//	POST /levers/:id/command      {"command": "left" | "right" | "center"}
//	POST /buttons/:id/command
//	POST /routes/:id/activate
//	POST /routes/:id/confirm
//	POST /routes/:id/cancel
//	POST /routes/:id/deactivate
//	POST /switches/:id            {"position": "normal" | "reverse"}
//	GET  /events                  server-sent events of interlock.Event
//	GET  /metrics                 Prometheus
package signalbox

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"
	"nyiyui.ca/hato/interlocking/interlock"
)

const eventStream = "events"

type Server struct {
	m       *interlock.Machine
	s       *sse.Server
	engine  *gin.Engine
	metrics *metrics
	done    chan struct{}
}

func NewServer(m *interlock.Machine) *Server {
	reg := prometheus.NewRegistry()
	s := &Server{
		m:       m,
		s:       sse.New(),
		engine:  gin.New(),
		metrics: newMetrics(reg, m),
		done:    make(chan struct{}),
	}
	s.s.AutoReplay = false
	s.s.CreateStream(eventStream)
	s.engine.Use(gin.Recovery())
	s.routes(reg)
	go s.forward()
	return s
}

// Close stops forwarding events.
func (s *Server) Close() {
	close(s.done)
}

func (s *Server) forward() {
	defer s.s.RemoveStream(eventStream)
	ch := make(chan interlock.Event, 16)
	s.m.Events.Subscribe("signalbox", ch)
	defer s.m.Events.Unsubscribe(ch)
	for {
		var e interlock.Event
		select {
		case <-s.done:
			return
		case e = <-ch:
		}
		s.metrics.events.WithLabelValues(e.Type.String()).Inc()
		data, err := json.Marshal(e)
		if err != nil {
			zap.S().Errorw("signalbox: marshal event", "event", e, "err", err)
			continue
		}
		s.s.TryPublish(eventStream, &sse.Event{
			Event: []byte(e.Type.String()),
			Data:  data,
		})
	}
}

func (s *Server) routes(reg *prometheus.Registry) {
	r := s.engine
	r.SetHTMLTemplate(parseTemplates())
	r.GET("/", s.handleIndex)
	r.GET("/layout", s.handleLayout)
	r.GET("/state", s.handleState)
	r.GET("/levers/:id/routes", s.handleRequestRoutes)
	r.POST("/levers/:id/routes", s.handleGenerateRoutes)
	r.POST("/levers/:id/command", s.handleLeverCommand)
	r.POST("/buttons/:id/command", s.handleButtonCommand)
	r.POST("/routes/:id/activate", s.handleActivate)
	r.POST("/routes/:id/confirm", s.handleConfirm)
	r.POST("/routes/:id/cancel", s.handleCancel)
	r.POST("/routes/:id/deactivate", s.handleDeactivate)
	r.POST("/switches/:id", s.handleThrow)
	r.GET("/events", s.handleEvents)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) handleEvents(c *gin.Context) {
	q := c.Request.URL.Query()
	q.Set("stream", eventStream)
	c.Request.URL.RawQuery = q.Encode()
	s.s.ServeHTTP(c.Writer, c.Request)
}
