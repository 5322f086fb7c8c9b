package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Criptoruim/jackalmultibuy/internal/models"
	"github.com/Criptoruim/jackalmultibuy/internal/services"
	"github.com/Criptoruim/jackalmultibuy/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// APIKeyContextKey is where the validated key is stored on the gin context
const APIKeyContextKey = "api_key"

// AuthMiddleware creates a middleware for API key authentication
func AuthMiddleware(authService services.AuthServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.GetLogger().WithContext(c.Request.Context())

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Warn("Missing API key in Authorization header",
				zap.String("client_ip", c.ClientIP()),
				zap.String("user_agent", c.Request.UserAgent()),
			)
			appErr := models.NewAppErrorWithDetails(
				models.ErrorCodeMissingAPIKey,
				"API key is required",
				"Provide API key in Authorization header",
			)
			models.HandleError(c, appErr, log)
			c.Abort()
			return
		}

		// accept "Bearer <key>" as well as the bare key
		apiKey := strings.TrimSpace(authHeader)
		if scheme, rest, found := strings.Cut(apiKey, " "); found && strings.EqualFold(scheme, "bearer") {
			apiKey = strings.TrimSpace(rest)
		} else if strings.EqualFold(apiKey, "bearer") {
			apiKey = ""
		}

		if apiKey == "" {
			appErr := models.NewAppErrorWithDetails(
				models.ErrorCodeInvalidAPIKey,
				"Invalid API key format",
				"API key cannot be empty",
			)
			models.HandleError(c, appErr, log)
			c.Abort()
			return
		}

		validatedKey, err := authService.ValidateAPIKey(c.Request.Context(), apiKey)
		if err != nil {
			log.Warn("API key validation failed",
				zap.Error(err),
				zap.String("client_ip", c.ClientIP()),
			)

			var appErr *models.AppError
			switch {
			case errors.Is(err, services.ErrInvalidAPIKey):
				appErr = models.NewAppError(models.ErrorCodeInvalidAPIKey, "Invalid API key")
			case errors.Is(err, services.ErrInactiveAPIKey):
				appErr = models.NewAppError(models.ErrorCodeInactiveAPIKey, "API key is inactive")
			case errors.Is(err, services.ErrDatabaseError):
				appErr = models.NewAppErrorWithCause(models.ErrorCodeDatabaseError, "Authentication service unavailable", err)
			default:
				appErr = models.NewAppErrorWithCause(models.ErrorCodeInvalidAPIKey, "Authentication failed", err)
			}

			models.HandleError(c, appErr, log)
			c.Abort()
			return
		}

		c.Set(APIKeyContextKey, validatedKey)
		c.Set("api_key_id", validatedKey.ID.Hex())
		c.Set("api_key_name", validatedKey.Name)

		ctx := logger.ContextWithUserID(c.Request.Context(), validatedKey.ID.Hex())
		c.Request = c.Request.WithContext(ctx)

		log.Debug("Authentication successful",
			zap.String("api_key_id", validatedKey.ID.Hex()),
			zap.String("api_key_name", validatedKey.Name),
		)

		c.Next()
	}
}

// RequirePurchase rejects keys that are not allowed to spend from the signer wallet
func RequirePurchase() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := c.Get(APIKeyContextKey)
		apiKey, _ := key.(*models.APIKey)
		if !ok || apiKey == nil || !apiKey.CanPurchase {
			appErr := models.NewAppErrorWithDetails(
				models.ErrorCodeInvalidAPIKey,
				"API key is not allowed to purchase storage",
				"Ask an operator to enable purchases for this key",
			)
			appErr.StatusCode = http.StatusForbidden
			models.HandleError(c, appErr, logger.GetLogger().WithContext(c.Request.Context()))
			c.Abort()
			return
		}
		c.Next()
	}
}

// APIKeyID keys rate limiting on the authenticated key, falling back to the client address
func APIKeyID(c *gin.Context) string {
	if id := c.GetString("api_key_id"); id != "" {
		return "key:" + id
	}
	return "ip:" + c.ClientIP()
}
