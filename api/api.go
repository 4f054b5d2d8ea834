package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace-api/utils/response"
	"go.uber.org/zap"
)

type APIServer struct {
	app           *fiber.App
	listenAddress string
	log           *zap.Logger
}

func NewAPIServer(listenAddress string, log *zap.Logger) *APIServer {
	return &APIServer{
		app: fiber.New(fiber.Config{
			AppName:      "course-marketplace-api",
			ErrorHandler: errorHandler(log),
		}),
		listenAddress: listenAddress,
		log:           log,
	}
}

// errorHandler renders errors no handler answered in the standard envelope
func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return response.Error(c, fe.Code, fe.Message)
		}

		log.Error("Unhandled error", zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
		return response.InternalServerError(c, "Internal server error")
	}
}

func (s *APIServer) GetEngine() *fiber.App {
	return s.app
}

// Run blocks serving HTTP until Shutdown is called
func (s *APIServer) Run() error {
	s.log.Info("Starting API server", zap.String("address", s.listenAddress))
	return s.app.Listen(s.listenAddress)
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down API server")
	return s.app.ShutdownWithContext(ctx)
}
