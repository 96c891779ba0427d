package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/solatis/scorekeeper/internal/core/store"
	"github.com/solatis/scorekeeper/internal/types"
)

func (s *Service) registerRegistry(e *echo.Echo) {
	write := RequireAPIKey(s.auth)

	e.GET("/departments", s.listDepartments)
	e.POST("/departments", s.createDepartment, write)
	e.GET("/departments/:id", s.getDepartment)
	e.PUT("/departments/:id", s.updateDepartment, write)
	e.DELETE("/departments/:id", s.deleteDepartment, write)
	e.GET("/departments/:id/formulas", s.listDepartmentFormulas)
	e.POST("/departments/:id/formulas", s.createFormula, write)

	e.GET("/formulas", s.listFormulas)
	e.GET("/formulas/:id", s.getFormula)
	e.PUT("/formulas/:id", s.updateFormula, write)
	e.DELETE("/formulas/:id", s.deleteFormula, write)

	e.GET("/patient-fields", s.listPatientFields)
	e.POST("/patient-fields", s.createPatientField, write)
	e.PUT("/patient-fields/:id", s.updatePatientField, write)
	e.DELETE("/patient-fields/:id", s.deletePatientField, write)
}

// pathID validates the :id parameter with parse, reporting malformed ids as
// not found.
func pathID[T any](c echo.Context, what string, parse func(string) (T, error)) (T, error) {
	id, err := parse(c.Param("id"))
	if err != nil {
		return id, fmt.Errorf("%w: %s %q", types.ErrNotFound, what, c.Param("id"))
	}
	return id, nil
}

func (s *Service) listDepartments(c echo.Context) error {
	departments, err := s.store.ListDepartments(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, departments)
}

func (s *Service) createDepartment(c echo.Context) error {
	var in store.DepartmentInput
	if err := decodeJSON(c, &in); err != nil {
		return err
	}
	d, err := s.store.CreateDepartment(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (s *Service) getDepartment(c echo.Context) error {
	id, err := pathID(c, "department", types.ParseDepartmentID)
	if err != nil {
		return err
	}
	d, err := s.store.GetDepartment(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (s *Service) updateDepartment(c echo.Context) error {
	id, err := pathID(c, "department", types.ParseDepartmentID)
	if err != nil {
		return err
	}
	var up store.DepartmentUpdate
	if err := decodeJSON(c, &up); err != nil {
		return err
	}
	d, err := s.store.UpdateDepartment(c.Request().Context(), id, up)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (s *Service) deleteDepartment(c echo.Context) error {
	id, err := pathID(c, "department", types.ParseDepartmentID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDepartment(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Department deleted"})
}

func (s *Service) listDepartmentFormulas(c echo.Context) error {
	id, err := pathID(c, "department", types.ParseDepartmentID)
	if err != nil {
		return err
	}
	if _, err := s.store.GetDepartment(c.Request().Context(), id); err != nil {
		return err
	}
	formulas, err := s.store.ListFormulas(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, formulas)
}

// parseRawText fills a missing document from rule text.
func (s *Service) parseRawText(c echo.Context, doc **types.RuleDocument, raw string) error {
	if *doc != nil || strings.TrimSpace(raw) == "" {
		return nil
	}
	parsed, err := s.engine.Parse(c.Request().Context(), raw)
	if err != nil {
		return err
	}
	*doc = parsed
	return nil
}

func (s *Service) createFormula(c echo.Context) error {
	id, err := pathID(c, "department", types.ParseDepartmentID)
	if err != nil {
		return err
	}
	var in store.FormulaInput
	if err := decodeJSON(c, &in); err != nil {
		return err
	}
	in.DepartmentID = id
	if err := s.parseRawText(c, &in.Document, in.RawText); err != nil {
		return err
	}

	f, err := s.store.CreateFormula(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, f)
}

func (s *Service) listFormulas(c echo.Context) error {
	var department types.DepartmentID
	if q := c.QueryParam("department_id"); q != "" {
		id, err := types.ParseDepartmentID(q)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid department_id")
		}
		department = id
	}
	formulas, err := s.store.ListFormulas(c.Request().Context(), department)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, formulas)
}

func (s *Service) getFormula(c echo.Context) error {
	id, err := pathID(c, "formula", types.ParseFormulaID)
	if err != nil {
		return err
	}
	f, err := s.store.GetFormula(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

func (s *Service) updateFormula(c echo.Context) error {
	id, err := pathID(c, "formula", types.ParseFormulaID)
	if err != nil {
		return err
	}
	var up store.FormulaUpdate
	if err := decodeJSON(c, &up); err != nil {
		return err
	}
	if up.RawText != nil {
		if err := s.parseRawText(c, &up.Document, *up.RawText); err != nil {
			return err
		}
	}

	f, err := s.store.UpdateFormula(c.Request().Context(), id, up)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

func (s *Service) deleteFormula(c echo.Context) error {
	id, err := pathID(c, "formula", types.ParseFormulaID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteFormula(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Formula deleted"})
}

func (s *Service) listPatientFields(c echo.Context) error {
	fields, err := s.store.ListPatientFields(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fields)
}

func (s *Service) createPatientField(c echo.Context) error {
	var in store.PatientFieldInput
	if err := decodeJSON(c, &in); err != nil {
		return err
	}
	f, err := s.store.CreatePatientField(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, f)
}

func (s *Service) updatePatientField(c echo.Context) error {
	id, err := pathID(c, "patient field", types.ParsePatientFieldID)
	if err != nil {
		return err
	}
	var up store.PatientFieldUpdate
	if err := decodeJSON(c, &up); err != nil {
		return err
	}
	f, err := s.store.UpdatePatientField(c.Request().Context(), id, up)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

func (s *Service) deletePatientField(c echo.Context) error {
	id, err := pathID(c, "patient field", types.ParsePatientFieldID)
	if err != nil {
		return err
	}
	if err := s.store.DeletePatientField(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Patient field deleted"})
}
