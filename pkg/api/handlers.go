package api

import (
	"io"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/aboerstra/fraud-adjudicator/pkg/ingress"
)

// submitHandler handles POST /v1/applications (spec §4.1, §6).
func (s *Server) submitHandler(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, &ErrorResponse{
			Error:   "InvalidPayload",
			Message: "failed to read request body",
		})
	}

	in := ingress.SubmitInput{
		Headers: ingress.Headers{
			APIKey:    c.Request().Header.Get("X-Api-Key"),
			Timestamp: c.Request().Header.Get("X-Timestamp"),
			Nonce:     c.Request().Header.Get("X-Nonce"),
			Signature: c.Request().Header.Get("X-Signature"),
		},
		Method:    c.Request().Method,
		Path:      c.Request().URL.Path,
		Body:      body,
		ClientIP:  c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}

	result, err := s.ingress.Submit(c.Request().Context(), in)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusCreated, result)
}

// pollHandler handles GET /v1/decision/{job_id} (spec §4.1, §6).
func (s *Server) pollHandler(c *echo.Context) error {
	jobID := c.Param("job_id")
	if jobID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, &ErrorResponse{
			Error:   "InvalidPayload",
			Message: "job_id is required",
		})
	}

	result, err := s.ingress.Poll(c.Request().Context(), jobID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, result)
}
