package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"agentdms/lib/authz"
	"agentdms/lib/data"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestStoreErrorResponse(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: fmt.Errorf("role 4: %w", data.ErrNotFound), want: http.StatusNotFound},
		{name: "unknown field", err: authz.ErrCustomFieldNotFound, want: http.StatusNotFound},
		{name: "conflict", err: fmt.Errorf("role Editor: %w", data.ErrConflict), want: http.StatusConflict},
		{name: "default field", err: fmt.Errorf("custom field 3: %w", data.ErrNotRemovable), want: http.StatusConflict},
		{name: "immutable user", err: fmt.Errorf("user 1: %w", data.ErrImmutableUser), want: http.StatusForbidden},
		{name: "unverifiable restriction", err: fmt.Errorf("field 9: %w", authz.ErrUnverifiableRestriction), want: http.StatusUnprocessableEntity},
		{name: "store failure", err: errors.New("connection reset"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := StoreErrorResponse(tt.err, "load role", logger)

			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestStoreErrorResponseHidesStoreDetails(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	resp := StoreErrorResponse(errors.New("pq: password authentication failed"), "load role", logger)

	assert.NotContains(t, resp.Body, "password")
	assert.Contains(t, resp.Body, "Failed to load role")
}
