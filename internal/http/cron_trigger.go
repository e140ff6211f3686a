package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/devletter/newsletterd/internal/service/newsletter"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// runCronHandler fires one daily pipeline pass and returns its summary.
// Safe to hit repeatedly: the run is idempotent per calendar day.
func runCronHandler(runner *newsletter.Runner) echo.HandlerFunc {
	return func(c echo.Context) error {
		var date time.Time
		if raw := strings.TrimSpace(c.QueryParam("date")); raw != "" {
			parsed, err := time.ParseInLocation("2006-01-02", raw, time.Local)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid date, want YYYY-MM-DD"})
			}
			date = parsed
		}

		summary, err := runner.Run(c.Request().Context(), date)
		if err != nil {
			log.Errorf("cron run failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "cron run failed"})
		}
		return c.JSON(http.StatusOK, summary)
	}
}
