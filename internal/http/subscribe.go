package http

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/devletter/newsletterd/internal/model"
	"github.com/devletter/newsletterd/internal/repository"
	"github.com/devletter/newsletterd/internal/util"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type subscribeReq struct {
	Email     string   `json:"email"`
	Interests []string `json:"interests"`
}

func subscribeHandler(subscribers repository.SubscribersRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req subscribeReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		if _, err := mail.ParseAddress(req.Email); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid email"})
		}

		// Canonicalize interest labels; reject unknown ones.
		labels := make(model.Interests, 0, len(req.Interests))
		for _, raw := range req.Interests {
			cat, ok := model.ParseCategory(raw)
			if !ok {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown interest: " + raw})
			}
			if !labels.Has(cat.Label()) {
				labels = append(labels, cat.Label())
			}
		}
		if len(labels) == 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "at least one interest required"})
		}

		existing, err := subscribers.GetByEmail(c.Request().Context(), req.Email)
		if err != nil {
			log.Errorf("subscriber lookup failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		sub := model.Subscriber{
			ID:               util.New(),
			Email:            req.Email,
			Interests:        labels,
			UnsubscribeToken: util.New(),
		}
		if err := subscribers.Upsert(c.Request().Context(), sub); err != nil {
			log.Errorf("subscribe failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		status := http.StatusCreated
		if existing != nil {
			status = http.StatusOK
		}
		return c.JSON(status, map[string]any{
			"subscribed": true,
			"email":      req.Email,
			"interests":  labels,
		})
	}
}

func unsubscribeHandler(subscribers repository.SubscribersRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := strings.TrimSpace(c.QueryParam("token"))
		if token == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing token"})
		}

		done, err := subscribers.UnsubscribeByToken(c.Request().Context(), token, nowFunc())
		if err != nil {
			log.Errorf("unsubscribe failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if !done {
			// unknown token or already unsubscribed; both are fine to ack
			return c.JSON(http.StatusOK, map[string]any{"unsubscribed": false})
		}
		return c.JSON(http.StatusOK, map[string]any{"unsubscribed": true})
	}
}
