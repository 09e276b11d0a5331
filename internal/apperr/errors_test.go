package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("ingest: %w", Conflict("external id 42 belongs to another shop"))

	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestSchemaErrorMessageNamesField(t *testing.T) {
	err := Schema("goods[0].price", "is required")

	assert.Equal(t, "goods[0].price: is required", err.Error())
}

func TestAsWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := As(cause)

	assert.Equal(t, KindInternal, wrapped.Kind)
	assert.ErrorIs(t, wrapped, cause)

	fetchErr := Fetch("unexpected status 404", nil)
	assert.Same(t, fetchErr, As(fetchErr))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindUnauthenticated: http.StatusUnauthorized,
		KindForbidden:       http.StatusForbidden,
		KindBadRequest:      http.StatusBadRequest,
		KindFetch:           http.StatusBadGateway,
		KindSchema:          http.StatusUnprocessableEntity,
		KindConflict:        http.StatusConflict,
		KindInternal:        http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, HTTPStatus(kind), string(kind))
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("other")))
}
