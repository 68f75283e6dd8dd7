package http

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"chessanalysis/internal/server/core"
	"chessanalysis/internal/server/service"
	"chessanalysis/internal/server/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const rateLimitRate = 10 // req/sec

// SessionCounter reports the number of live analysis sessions
type SessionCounter interface {
	Count() int
}

// HTTPHandler serves health, metrics and the game history API
type HTTPHandler struct {
	svc      *service.Service
	sessions SessionCounter
}

func NewHTTPHandler(svc *service.Service, sessions SessionCounter) *HTTPHandler {
	return &HTTPHandler{svc: svc, sessions: sessions}
}

func NewFiberApp(svc *service.Service, sessions SessionCounter, devMode bool) *fiber.App {
	h := NewHTTPHandler(svc, sessions)

	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
	})

	// Global middleware (order matters)
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health and metrics (no rate limit)
	app.Get("/health", h.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")

	maxReq := rateLimitRate
	if devMode {
		maxReq = rateLimitRate * 2
	}
	api.Use(limiter.New(limiter.Config{
		Max:        maxReq,
		Expiration: 1 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			if xff := c.Get("X-Forwarded-For"); xff != "" {
				if idx := strings.Index(xff, ","); idx != -1 {
					return strings.TrimSpace(xff[:idx])
				}
				return xff
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(core.ErrorResponse{
				Error:   "rate limit exceeded",
				Code:    core.ErrRateLimitExceeded,
				Details: fmt.Sprintf("%d requests per second allowed", maxReq),
			})
		},
	}))

	api.Use(contentTypeValidator)

	games := api.Group("/games", AuthRequired(svc.ValidateToken))
	games.Post("/", h.CreateGame)
	games.Get("/", h.ListGames)
	games.Get("/:gameId", h.GetGame)

	return app
}

// customErrorHandler provides consistent error responses
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	response := core.ErrorResponse{
		Error: "internal server error",
		Code:  core.ErrInternalError,
	}

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		response.Error = e.Message

		switch code {
		case fiber.StatusNotFound:
			response.Code = core.ErrGameNotFound
		case fiber.StatusBadRequest:
			response.Code = core.ErrInvalidRequest
		case fiber.StatusTooManyRequests:
			response.Code = core.ErrRateLimitExceeded
		}
	}

	return c.Status(code).JSON(response)
}

// Health check endpoint with storage status
func (h *HTTPHandler) Health(c *fiber.Ctx) error {
	sessions := 0
	if h.sessions != nil {
		sessions = h.sessions.Count()
	}
	return c.JSON(fiber.Map{
		"status":   "healthy",
		"time":     time.Now().Unix(),
		"storage":  h.svc.GetStorageHealth(),
		"sessions": sessions,
	})
}

// CreateGame starts an empty game owned by the caller
func (h *HTTPHandler) CreateGame(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)

	game, err := h.svc.CreateGame(userID)
	if err != nil {
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(newGameResponse(game))
}

// ListGames returns the caller's games, newest first
func (h *HTTPHandler) ListGames(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)

	games, err := h.svc.ListGames(userID)
	if err != nil {
		return serviceError(c, err)
	}

	resp := make([]core.GameSummary, 0, len(games))
	for _, g := range games {
		resp = append(resp, core.GameSummary{
			GameID:    g.GameID,
			Result:    g.Result.String(),
			MoveCount: g.MoveCount,
			CreatedAt: g.CreatedAt,
		})
	}
	return c.JSON(resp)
}

// GetGame returns one of the caller's games with its ordered moves
func (h *HTTPHandler) GetGame(c *fiber.Ctx) error {
	gameID := c.Params("gameId")

	if !isValidUUID(gameID) {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "invalid game ID format",
			Code:    core.ErrInvalidRequest,
			Details: "game ID must be a valid UUID",
		})
	}

	userID, _ := c.Locals("userID").(string)

	game, err := h.svc.GetGame(gameID, userID)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(newGameResponse(game))
}

func newGameResponse(g *core.Game) core.GameResponse {
	resp := core.GameResponse{
		GameID:    g.ID,
		OwnerID:   g.OwnerID,
		Result:    g.Result.String(),
		CreatedAt: g.CreatedAt,
		Moves:     make([]core.MoveResponse, 0, len(g.Moves)),
	}
	for _, m := range g.Moves {
		resp.Moves = append(resp.Moves, core.MoveResponse{
			From:       m.From,
			To:         m.To,
			FEN:        m.Fingerprint,
			Evaluation: m.Evaluation,
			Timestamp:  m.SubmittedAt,
		})
	}
	return resp
}

// serviceError maps service and storage errors to HTTP responses
func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, storage.ErrGameNotFound):
		return c.Status(fiber.StatusNotFound).JSON(core.ErrorResponse{
			Error: "game not found",
			Code:  core.ErrGameNotFound,
		})
	case errors.Is(err, service.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(core.ErrorResponse{
			Error: "access denied",
			Code:  core.ErrForbidden,
		})
	case errors.Is(err, service.ErrStorageDisabled):
		return c.Status(fiber.StatusServiceUnavailable).JSON(core.ErrorResponse{
			Error:   "game history unavailable",
			Code:    core.ErrStorageDisabled,
			Details: "server runs without storage",
		})
	case errors.Is(err, storage.ErrDegraded):
		return c.Status(fiber.StatusServiceUnavailable).JSON(core.ErrorResponse{
			Error: "storage degraded",
			Code:  core.ErrInternalError,
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(core.ErrorResponse{
			Error: "internal server error",
			Code:  core.ErrInternalError,
		})
	}
}
