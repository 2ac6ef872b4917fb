package database

import (
	"testing"

	"github.com/pashagolub/pgxmock/v4"
)

// Database Test Infrastructure
//
// This file provides helpers for unit testing database stores using pgxmock.
// Use these patterns to test store methods without requiring a real PostgreSQL database.
//
// ARCHITECTURE:
//
// All stores use the DBTX interface (defined in dbtx.go) which abstracts database operations.
// This allows stores to work with either:
//   - *Pool (production): Real PostgreSQL connection pool
//   - pgxmock.PgxPoolIface (testing): Mock that simulates database behavior
//
// AVAILABLE STORES AND THEIR TEST CONSTRUCTORS:
//
//   Store                    Test Constructor
//   -----                    ----------------
//   JobStore                 NewJobStoreWithDB(db DBTX)
//   WebhookDeliveryStore     NewWebhookDeliveryStoreWithDB(db DBTX)
//   PollStateStore           NewPollStateStoreWithDB(db DBTX)
//
// PATTERN OVERVIEW:
//
// 1. Create a mock pool using NewMockPool(t)
// 2. Set expectations for the SQL queries your test will execute
// 3. Create your store using NewXxxStoreWithDB(mock)
// 4. Call the store method
// 5. Assert results and verify all expectations were met (automatic via t.Cleanup)
//
// EXAMPLE:
//
//   func TestJobStore_GetJob(t *testing.T) {
//       mock := NewMockPool(t)
//       store := NewJobStoreWithDB(mock)
//
//       rows := pgxmock.NewRows(jobTableColumns).
//           AddRow("app", []byte(`{"type":"git"}`), true, "http://h/r/", true, "")
//       mock.ExpectQuery(`SELECT name, scm`).
//           WithArgs("app").
//           WillReturnRows(rows)
//
//       job, err := store.GetJob(context.Background(), "app")
//
//       require.NoError(t, err)
//       assert.True(t, job.PushTrigger)
//   }
//
// QUERY MATCHING:
//
// pgxmock uses regexp matching by default. Use ExpectQuery/ExpectExec with a pattern
// that matches the SQL query. You can use:
//   - Literal strings (will be regexp-escaped automatically by pgxmock)
//   - Regexp patterns for flexible matching
//   - pgxmock.QueryMatcherEqual for exact string matching
//
// COMMON PATTERNS:
//
// - Testing not found: Return pgx.ErrNoRows or empty rows
// - Testing errors: Use WillReturnError(err)
// - Testing constraint violations: Return a *pgconn.PgError with appropriate code
// - Testing multiple rows: Use AddRow() multiple times on the same Rows object
//
// HANDLING NIL POINTER ARGUMENTS:
//
// Generated ids and optional pointer arguments are easiest matched with
// pgxmock.AnyArg():
//
//   mock.ExpectQuery(`INSERT INTO webhook_deliveries`).
//       WithArgs(pgxmock.AnyArg(), repoURL, pgxmock.AnyArg(), ...).
//       WillReturnRows(rows)
//
// See webhook_delivery_store_mock_test.go for complete examples.

// NewMockPool creates a new pgxmock pool for testing.
// The mock is automatically configured with QueryMatcherRegexp for flexible query matching.
// Call mock.ExpectationsWereMet() at the end of your test to verify all expectations.
func NewMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(func() {
		mock.Close()
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled mock expectations: %v", err)
		}
	})
	return mock
}

// NewMockPoolWithQueryMatcher creates a mock pool with a custom query matcher.
// Use pgxmock.QueryMatcherEqual for exact string matching if regexp is not desired.
func NewMockPoolWithQueryMatcher(t *testing.T, matcher pgxmock.QueryMatcher) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(matcher))
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(func() {
		mock.Close()
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled mock expectations: %v", err)
		}
	})
	return mock
}
