// Package server exposes a session over an HTTP API with server-sent events.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"time"

	"feedstrip/models"
	"feedstrip/session"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

const refreshWaitTimeout = 2 * time.Minute

type ServerConfig struct {
	Session *session.Session

	// Broadcast cycle events to SSE clients
	Broadcaster *Broadcaster

	// Comma separated list of origins allowed by CORS
	AllowOrigins string

	// Resize requests allowed per client within ResizeWindow
	ResizeLimit  int
	ResizeWindow time.Duration
}

type addSourceRequest struct {
	URL string `json:"url"`
}

type resizeRequest struct {
	Width int `json:"width"`
}

type themeRequest struct {
	Theme string `json:"theme"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Returns a fiber.App serving the feedstrip API
func Server(config *ServerConfig) *fiber.App {
	sess := config.Session
	bc := config.Broadcaster

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return sendError(c, err, sess.MaxSources())
		},
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New(compress.Config{
		// Compressing the event stream would buffer it
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/api/events"
		},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: config.AllowOrigins,
		AllowHeaders: "Cache-Control, Content-Type",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	api.Get("/sources", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sources": sess.Sources(),
			"max":     sess.MaxSources(),
		})
	})

	api.Post("/sources", func(c *fiber.Ctx) error {
		var req addSourceRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		identity, err := sess.AddSource(c.UserContext(), req.URL)
		if err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"source": identity,
		}).Info("Source added over API")

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"source":  identity,
			"sources": sess.Sources(),
		})
	})

	api.Delete("/sources", func(c *fiber.Ctx) error {
		identity := c.Query("url")
		if identity == "" {
			return models.NewFeedError(models.NotFound, "", nil)
		}
		if err := sess.RemoveSource(c.UserContext(), identity); err != nil {
			return err
		}
		return c.JSON(sess.View())
	})

	api.Post("/refresh", func(c *fiber.Ctx) error {
		if err := sess.Refresh(); err != nil {
			return err
		}
		if !c.QueryBool("wait") {
			return c.SendStatus(fiber.StatusAccepted)
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), refreshWaitTimeout)
		defer cancel()
		if err := sess.Wait(ctx); err != nil {
			return fiber.NewError(fiber.StatusGatewayTimeout, "Timed out waiting for feeds")
		}
		return c.JSON(fiber.Map{
			"report": sess.LastReport(),
			"window": sess.View(),
		})
	})

	api.Get("/window", func(c *fiber.Ctx) error {
		if c.Query("width") != "" {
			width := c.QueryInt("width", -1)
			if width < 0 {
				return fiber.NewError(fiber.StatusBadRequest, "Width must be a non-negative integer")
			}
			return c.JSON(sess.Resize(width))
		}
		return c.JSON(sess.View())
	})

	api.Post("/window/next", func(c *fiber.Ctx) error {
		return c.JSON(sess.Next())
	})

	api.Post("/window/previous", func(c *fiber.Ctx) error {
		return c.JSON(sess.Previous())
	})

	// Resize fires on every layout change, keep clients from flooding it
	api.Post("/window/resize", limiter.New(limiter.Config{
		Max:        config.ResizeLimit,
		Expiration: config.ResizeWindow,
	}), func(c *fiber.Ctx) error {
		var req resizeRequest
		if err := c.BodyParser(&req); err != nil || req.Width < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Width must be a non-negative integer")
		}
		return c.JSON(sess.Resize(req.Width))
	})

	api.Get("/theme", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"theme": sess.Theme()})
	})

	api.Put("/theme", func(c *fiber.Ctx) error {
		var req themeRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		theme, err := models.ParseTheme(req.Theme)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := sess.SetTheme(c.UserContext(), theme); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"theme": theme})
	})

	api.Post("/theme/toggle", func(c *fiber.Ctx) error {
		theme, err := sess.ToggleTheme(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"theme": theme})
	})

	api.Delete("/events", func(c *fiber.Ctx) error {
		bc.RemoveClient(c.Query("key", ""))
		return c.SendString("OK")
	})

	api.Get("/events", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		// Unique client key
		key := uuid.New().String()
		events := make(chan interface{}, 32)
		alive := time.NewTicker(5 * time.Second)

		bc.AddClient(key, events)

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer alive.Stop()
			defer func() {
				log.Infof("Cleaning up SSE stream for client: %s", key)
				bc.RemoveClient(key)
			}()

			// Send initial event with client key and current window
			fmt.Fprintf(w, "event: init\ndata: %s\n\n", key)
			if err := writeEvent(w, "window", sess.View()); err != nil {
				log.Errorf("Failed to send init event: %v", err)
				return
			}

			for {
				select {
				case <-alive.C:
					if _, err := fmt.Fprintf(w, "event: ping\ndata: \n\n"); err != nil {
						log.Warnf("Failed to send ping to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush ping for client %s: %v", key, err)
						return
					}

				case event, ok := <-events:
					if !ok {
						log.Warnf("Event channel closed for client %s", key)
						return
					}
					name, known := eventName(event)
					if !known {
						continue
					}
					if err := writeEvent(w, name, event); err != nil {
						log.Warnf("Failed to send %s event to client %s: %v", name, key, err)
						return
					}
					if _, completed := event.(models.CycleCompletedEvent); completed {
						if err := writeEvent(w, "window", sess.View()); err != nil {
							log.Warnf("Failed to send window to client %s: %v", key, err)
							return
						}
					}
				}
			}
		}))

		return nil
	})

	return app
}

// sendError maps registry errors to statuses with a user facing message
func sendError(c *fiber.Ctx, err error, maxSources int) error {
	var feedErr *models.FeedError
	if errors.As(err, &feedErr) {
		return c.Status(feedErrorStatus(feedErr.Kind)).JSON(errorResponse{
			Error:   string(feedErr.Kind),
			Message: feedErr.Kind.Message(maxSources),
		})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(errorResponse{
			Error:   fasthttp.StatusMessage(fiberErr.Code),
			Message: fiberErr.Message,
		})
	}

	log.WithFields(log.Fields{
		"path":  c.Path(),
		"error": err,
	}).Error("Request failed")

	return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{
		Error:   "Internal",
		Message: "Something went wrong.",
	})
}

func feedErrorStatus(kind models.ErrorKind) int {
	switch kind {
	case models.InvalidURL:
		return fiber.StatusBadRequest
	case models.NotFound:
		return fiber.StatusNotFound
	case models.DuplicateSource:
		return fiber.StatusConflict
	case models.CapacityExceeded:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusBadGateway
	}
}
