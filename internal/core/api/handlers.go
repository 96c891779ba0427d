package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/solatis/scorekeeper/internal/types"
)

// ParseRequest is the body of POST /parse.
type ParseRequest struct {
	Text string `json:"text"`
}

// CalculateRequest is the body of POST /calculate.
type CalculateRequest struct {
	AST    *types.RuleDocument `json:"ast"`
	Inputs types.Inputs        `json:"inputs"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// decodeJSON reads a JSON body keeping numbers as json.Number so integer
// inputs stay integers.
func decodeJSON(c echo.Context, dest any) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		if err == io.EOF {
			return echo.NewHTTPError(http.StatusBadRequest, "request body is empty")
		}
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body").SetInternal(err)
	}
	return nil
}

func (s *Service) parse(c echo.Context) error {
	var req ParseRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}

	doc, err := s.engine.Parse(c.Request().Context(), req.Text)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Service) calculate(c echo.Context) error {
	var req CalculateRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	if req.AST == nil {
		return fmt.Errorf("%w: ast is required", types.ErrUnknownDocumentShape)
	}

	res, err := s.engine.Evaluate(c.Request().Context(), req.AST, req.Inputs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Service) chat(c echo.Context) error {
	var req ChatRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	if s.assistant == nil {
		return types.ErrAIUnavailable
	}

	ctx := c.Request().Context()
	var fields []types.PatientField
	if s.store != nil {
		var err error
		if fields, err = s.store.ListPatientFields(ctx); err != nil {
			// The hint is optional; chat still works without it.
			s.logger.Warn().Err(err).Str("request_id", requestID(c)).Msg("patient fields unavailable for chat hint")
		}
	}

	reply, err := s.assistant.Chat(ctx, req.Message, fields)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reply)
}
