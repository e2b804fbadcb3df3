package http

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/shortlink/internal/entity"
)

// urlRequest represents the structure for a request to shorten a URL.
// Any non-empty string is accepted as a long URL.
type urlRequest struct {
	LongURL string `json:"longUrl" validate:"required"`
}

// urlResponse represents the structure for a response containing shortened URL information.
type urlResponse struct {
	ShortURL string `json:"shortUrl"`
	LongURL  string `json:"longUrl"`
	TTL      int64  `json:"ttl"`
}

// toURLResponse converts an entity.URL to a urlResponse. TTL is the expiration in epoch seconds.
func toURLResponse(url *entity.URL) urlResponse {
	return urlResponse{
		ShortURL: url.ShortCode,
		LongURL:  url.OriginalURL,
		TTL:      url.ExpiresAt.Unix(),
	}
}

// urlStatsResponse represents the structure for a response containing URL statistics.
type urlStatsResponse struct {
	urlResponse
	AccessCount int64     `json:"accessCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toURLStatsResponse(url *entity.URL) urlStatsResponse {
	return urlStatsResponse{
		urlResponse: toURLResponse(url),
		AccessCount: url.AccessCount,
		CreatedAt:   url.CreatedAt,
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

var healthyResponse = healthResponse{Status: "healthy"}

// validationError represents an individual validation error.
type validationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// errorResponse represents a structured error response.
type errorResponse struct {
	Error   string            `json:"error"`
	Details []validationError `json:"details,omitempty"`
}

// Predefined error responses for common scenarios.
var (
	emptyRequestBodyResponse = errorResponse{
		Error: "empty request body",
	}

	invalidRequestBodyResponse = errorResponse{
		Error: "invalid request body",
	}

	emptyURLResponse = errorResponse{
		Error: "longUrl is required",
	}

	urlNotFoundResponse = errorResponse{
		Error: "URL not found",
	}

	serverErrorResponse = errorResponse{
		Error: "internal server error",
	}
)

// messageForTag returns a user-friendly message based on the validation tag.
func messageForTag(tag string) string {
	switch tag {
	case "required":
		return "this field is required"
	default:
		return "invalid value"
	}
}

// getValidationErrors processes validation errors and returns a list of validationError.
func getValidationErrors(err error) []validationError {
	var validationErrs []validationError

	errs, ok := err.(validator.ValidationErrors)
	if ok {
		for _, e := range errs {
			validationErrs = append(validationErrs, validationError{
				Field:   e.Field(),
				Message: messageForTag(e.Tag()),
			})
		}
	}

	return validationErrs
}

// validationErrorResponse constructs an errorResponse for validation errors.
func validationErrorResponse(err error) errorResponse {
	return errorResponse{
		Error:   "validation error",
		Details: getValidationErrors(err),
	}
}
