package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/devletter/newsletterd/internal/model"
	"github.com/devletter/newsletterd/internal/repository"
	echo "github.com/labstack/echo/v4"
)

func issueStatsHandler(issues repository.IssuesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		counts, err := issues.CountByStatus(c.Request().Context())
		if err != nil {
			c.Logger().Errorf("issue stats failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}
		return c.JSON(http.StatusOK, map[string]any{"issues": counts})
	}
}

func listDeliveryLogHandler(logRepo repository.DeliveryLogRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		var st model.DeliveryStatus
		if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
			tmp := model.DeliveryStatus(raw)
			if tmp.Valid() {
				st = tmp
			}
		}

		category := ""
		if raw := strings.TrimSpace(c.QueryParam("category")); raw != "" {
			if cat, ok := model.ParseCategory(raw); ok {
				category = cat.String()
			}
		}

		rows, err := logRepo.List(c.Request().Context(), category, st, limit, offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
