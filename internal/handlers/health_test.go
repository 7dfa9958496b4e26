package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk/internal/database"
	"helpdesk/internal/models"
)

func TestHealthHandler(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/healthz", "")
	require.NoError(t, HealthHandler("3.1.0")(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "3.1.0", resp.Version)
	assert.WithinDuration(t, time.Now().UTC(), resp.Timestamp, 5*time.Second)
}

func TestRootHandler(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/api/", "")
	require.NoError(t, RootHandler("3.1.0")(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var info models.ServiceInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, models.ServiceInfo{
		Service: "Helpdesk API",
		Version: "3.1.0",
		Status:  "running",
		Docs:    "/swagger/index.html",
	}, info)
}

func expectPing(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()
}

func expectTables(mock sqlmock.Sqlmock, names ...string) {
	rows := sqlmock.NewRows([]string{"table_name"})
	for _, name := range names {
		rows.AddRow(name)
	}
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM information_schema.tables`).WillReturnRows(rows)
	mock.ExpectRollback()
}

func TestDBHealthHandler(t *testing.T) {
	tests := []struct {
		name            string
		setupMock       func(mock sqlmock.Sqlmock)
		expectedStatus  int
		expectedState   string
		expectConnected bool
		expectedError   string
		expectedMissing []string
	}{
		{
			name: "reachable and migrated",
			setupMock: func(mock sqlmock.Sqlmock) {
				expectPing(mock)
				expectTables(mock, database.RequiredTables...)
			},
			expectedStatus:  http.StatusOK,
			expectedState:   "healthy",
			expectConnected: true,
		},
		{
			name: "transaction cannot start",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(sql.ErrConnDone)
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedState:  "unhealthy",
			expectedError:  "Database read-only query failed: failed to begin read-only transaction",
		},
		{
			name: "ping query fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT 1`).WillReturnError(errors.New("terminating connection"))
				mock.ExpectRollback()
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedState:  "unhealthy",
			expectedError:  "Database read-only query failed: failed to execute read-only ping query",
		},
		{
			name: "schema not migrated",
			setupMock: func(mock sqlmock.Sqlmock) {
				expectPing(mock)
				expectTables(mock, "organizations", "contacts", "tickets", "email_threads", "email_messages")
			},
			expectedStatus:  http.StatusServiceUnavailable,
			expectedState:   "degraded",
			expectConnected: true,
			expectedError:   "Schema not migrated: missing notes, response_drafts",
			expectedMissing: []string{"notes", "response_drafts"},
		},
		{
			name: "schema inspection fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				expectPing(mock)
				mock.ExpectBegin()
				mock.ExpectQuery(`FROM information_schema.tables`).WillReturnError(errors.New("permission denied"))
				mock.ExpectRollback()
			},
			expectedStatus:  http.StatusServiceUnavailable,
			expectedState:   "unhealthy",
			expectConnected: true,
			expectedError:   "failed to inspect schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockDB, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer mockDB.Close()
			tt.setupMock(mock)

			c, rec := newContext(http.MethodGet, "/healthz/db", "")
			require.NoError(t, DBHealthHandler(sqlx.NewDb(mockDB, "sqlmock"))(c))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			var resp models.DBHealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.expectedState, resp.Status)
			assert.Equal(t, tt.expectConnected, resp.Connected)
			assert.Equal(t, tt.expectedMissing, resp.Missing)
			if tt.expectedError == "" {
				assert.Empty(t, resp.Error)
			} else {
				assert.Contains(t, resp.Error, tt.expectedError)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDBHealthHandler_NoDatabase(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/healthz/db", "")
	require.NoError(t, DBHealthHandler(nil)(c))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp models.DBHealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.False(t, resp.Connected)
	assert.Equal(t, "Database connection not initialized", resp.Error)
}
