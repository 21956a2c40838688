package match

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/andestx/rubromatch/pkg/matching"
	"github.com/andestx/rubromatch/pkg/models"
)

var validate = validator.New()

// Register registers match routes
func Register(g *echo.Group) {
	g.POST("", MatchBatch)
	g.GET("/status", IndexStatus)
}

// MatchBatch matches a batch of extracted rubros against the catalog
func MatchBatch(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.MatchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, engine, err := ectoinject.GetContext[*matching.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	if !engine.Ready() {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "catalog index not built")
	}

	outcomes, err := engine.MatchBatch(ctx, req.Rubros)
	if err != nil {
		return err
	}

	resp := models.MatchResponse{Outcomes: outcomes}
	for i := range outcomes {
		resp.Stats.Count(outcomes[i].Status)
	}

	return c.JSON(http.StatusOK, resp)
}

// IndexStatus reports whether the catalog index is built and its size
func IndexStatus(c echo.Context) error {
	ctx := c.Request().Context()

	_, engine, err := ectoinject.GetContext[*matching.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"ready":        engine.Ready(),
		"catalog_size": engine.CatalogSize(),
	})
}
