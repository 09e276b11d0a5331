package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestGetPaginationParams(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		query string
		want  PaginationParams
	}{
		{"", PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "desc"}},
		{"?page=3&limit=50&sort=price&order=asc", PaginationParams{Page: 3, Limit: 50, Sort: "price", Order: "asc"}},
		{"?page=-1&limit=1000&order=sideways", PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "desc"}},
	}

	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("GET", "/v1/partner/offers"+tt.query, nil)
		assert.Equal(t, tt.want, GetPaginationParams(c), tt.query)
	}
}

func TestCreatePaginationResult(t *testing.T) {
	result := CreatePaginationResult([]int{1, 2}, 41, PaginationParams{Page: 2, Limit: 20})
	assert.Equal(t, 3, result.TotalPages)
	assert.Equal(t, int64(41), result.Total)
}
