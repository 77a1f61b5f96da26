package handlers

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/domain"
)

type listCDRsResponse struct {
	Records  []domain.CDR `json:"records"`
	NextPage string       `json:"next_page_token,omitempty"`
}

func (h *HandlerSet) listCDRs(ctx *fiber.Ctx) error {
	if h.archive == nil {
		return fiber.NewError(http.StatusServiceUnavailable, "cdr archive is not configured")
	}

	connectorID := ctx.Params("connectorId")
	day, err := time.Parse("2006-01-02", ctx.Query("date"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}

	limit, _ := strconv.Atoi(ctx.Query("limit", "100"))
	paging, err := decodePagingState(ctx.Query("page_token", ""))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid page token")
	}

	records, next, err := h.archive.ListByConnector(ctx.UserContext(), connectorID, day, limit, paging)
	if err != nil {
		return translateError(err)
	}
	if records == nil {
		records = []domain.CDR{}
	}

	return ctx.Status(http.StatusOK).JSON(listCDRsResponse{
		Records:  records,
		NextPage: encodePagingState(next),
	})
}

func encodePagingState(state []byte) string {
	if len(state) == 0 {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(state)
}

func decodePagingState(token string) ([]byte, error) {
	if token == "" {
		return nil, nil
	}
	return base64.RawURLEncoding.DecodeString(token)
}
