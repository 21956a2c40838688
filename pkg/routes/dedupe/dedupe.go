package dedupe

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	dedupeengine "github.com/andestx/rubromatch/pkg/dedupe"
	"github.com/andestx/rubromatch/pkg/models"
)

var validate = validator.New()

// Register registers dedupe routes
func Register(g *echo.Group) {
	g.POST("", Resolve)
}

// Resolve deduplicates a batch of extracted rubros
func Resolve(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.DedupeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, engine, err := ectoinject.GetContext[*dedupeengine.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := engine.Resolve(ctx, req.Rubros)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.DedupeResponse{
		Rubros: result.Rubros,
		Groups: result.Groups,
		Stats:  result.Stats,
	})
}
