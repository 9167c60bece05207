// Package server wires the webhook handlers into the HTTP server.
package server

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/comptoirhq/comptoir/internal/webhook"
)

type Server struct {
	echo *echo.Echo
	addr string
}

func NewServer(addr string, pingHandler *webhook.PingHandler, twilioHandler *webhook.TwilioHandler, whatsappHandler *webhook.WhatsAppCloudHandler, messengerHandler *webhook.MessengerHandler) *Server {
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	if pingHandler != nil {
		pingHandler.Register(e)
	}
	if twilioHandler != nil {
		twilioHandler.Register(e)
	}
	if whatsappHandler != nil {
		whatsappHandler.Register(e)
	}
	if messengerHandler != nil {
		messengerHandler.Register(e)
	}

	return &Server{
		echo: e,
		addr: addr,
	}
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
