package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/figuregen-backend/internal/domain/figures"
	errs "github.com/yungbote/figuregen-backend/internal/pkg/errors"
)

func figureIDParam(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid figure id %q", errs.ErrInvalidInput, c.Param("id"))
	}
	return id, nil
}

func variantParam(c *gin.Context) (figures.Variant, error) {
	v, ok := figures.ParseVariant(c.Param("variant"))
	if !ok {
		return "", fmt.Errorf("%w: unknown variant %q", errs.ErrInvalidInput, c.Param("variant"))
	}
	return v, nil
}

func parseVariants(raw []string) ([]figures.Variant, error) {
	out := make([]figures.Variant, 0, len(raw))
	for _, r := range raw {
		v, ok := figures.ParseVariant(r)
		if !ok {
			return nil, fmt.Errorf("%w: unknown variant %q", errs.ErrInvalidInput, r)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid figure id %q", errs.ErrInvalidInput, r)
		}
		out = append(out, id)
	}
	return out, nil
}
