package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validForm() ModuleForm {
	return ModuleForm{
		Name:     "Test Solar Panel",
		Voc:      "46.0",
		Isc:      "9.2",
		Vmp:      "37.5",
		Imp:      "8.6",
		Ns:       "72",
		Kv:       "-0.30",
		Ki:       "0.05",
		GammaPmp: "-0.40",
		Celltype: "monoSi",
	}
}

// countingService returns a module service backed by a handler, plus a call
// counter so tests can assert that local validation never reaches the wire.
func countingService(t *testing.T, handler http.HandlerFunc) (*ModuleService, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	transport := NewTransport(server.URL, &MemoryTokenStore{}, testLogger())
	return NewModuleService(transport, testLogger()), &calls
}

func TestCreateMissingFieldsListedInOrder(t *testing.T) {
	service, calls := countingService(t, func(w http.ResponseWriter, r *http.Request) {})

	form := validForm()
	form.Voc = ""
	form.Ki = "  "
	form.GammaPmp = ""

	_, err := service.Create(context.Background(), form)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "missing required fields: voc, ki, gamma_pmp", validation.Message)
	assert.Zero(t, calls.Load(), "local validation must not reach the network")
}

func TestCreateNonNumericFieldsListed(t *testing.T) {
	service, calls := countingService(t, func(w http.ResponseWriter, r *http.Request) {})

	form := validForm()
	form.Isc = "nine"
	form.Kv = "cold"

	_, err := service.Create(context.Background(), form)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "fields must be numeric: isc, kv", validation.Message)
	assert.Zero(t, calls.Load())
}

func TestCreateNonPositiveVoc(t *testing.T) {
	service, calls := countingService(t, func(w http.ResponseWriter, r *http.Request) {})

	form := validForm()
	form.Voc = "-1"

	_, err := service.Create(context.Background(), form)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "fields must be positive: voc", validation.Message)
	assert.Zero(t, calls.Load())
}

func TestCreateNsMustBePositiveInteger(t *testing.T) {
	service, _ := countingService(t, func(w http.ResponseWriter, r *http.Request) {})

	for _, ns := range []string{"2.5", "0", "-3"} {
		form := validForm()
		form.Ns = ns

		_, err := service.Create(context.Background(), form)
		var validation *ValidationError
		require.ErrorAs(t, err, &validation, "ns=%s", ns)
		assert.Equal(t, "ns must be a positive integer", validation.Message)
	}
}

func TestCreateCelltypeListsAllowedSet(t *testing.T) {
	service, _ := countingService(t, func(w http.ResponseWriter, r *http.Request) {})

	form := validForm()
	form.Celltype = "perovskite"

	_, err := service.Create(context.Background(), form)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "celltype must be one of: monoSi, multiSi, polySi, cis, cigs, cdte, amorphous", validation.Message)
}

func TestCreateForwardsConflictDetailVerbatim(t *testing.T) {
	service, _ := countingService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"detail": "Module with this name already exists"}`)
	})

	_, err := service.Create(context.Background(), validForm())
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Module with this name already exists", conflict.Detail)
}

func TestCreateCollapsesOtherFailures(t *testing.T) {
	service, _ := countingService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := service.Create(context.Background(), validForm())
	assert.ErrorIs(t, err, ErrCreateModule)
}

func TestCreateSendsTypedPayload(t *testing.T) {
	var body map[string]any
	service, _ := countingService(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 1, "name": "Test Solar Panel"}`)
	})

	created, err := service.Create(context.Background(), validForm())
	require.NoError(t, err)
	assert.Equal(t, 1, created.ID)

	assert.Equal(t, "Test Solar Panel", body["name"])
	assert.Equal(t, 46.0, body["voc"])
	assert.Equal(t, float64(72), body["ns"])
	assert.Equal(t, -0.4, body["gamma_pmp"])
	assert.Equal(t, "monoSi", body["celltype"])
}

func TestGetByIDNotFound(t *testing.T) {
	service, _ := countingService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail": "Module not found"}`)
	})

	_, err := service.GetByID(context.Background(), 7)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, 7, notFound.ID)
	assert.Equal(t, "module 7 not found", notFound.Error())
}

func TestListPagingParameters(t *testing.T) {
	var query string
	service, _ := countingService(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		fmt.Fprint(w, `[]`)
	})

	skip, limit := 10, 25
	_, err := service.List(context.Background(), &skip, &limit)
	require.NoError(t, err)
	assert.Equal(t, "limit=25&skip=10", query)

	_, err = service.List(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, query, "omitted paging leaves the server default")
}

func TestListFailureCollapsesToGenericError(t *testing.T) {
	service, _ := countingService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := service.List(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrLoadModules)
}

func TestUpdateValidatesOnlySuppliedFields(t *testing.T) {
	var body map[string]any
	service, _ := countingService(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fmt.Fprint(w, `{"id": 3, "name": "Renamed"}`)
	})

	updated, err := service.Update(context.Background(), 3, map[string]string{"name": "Renamed", "voc": "48.2"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	assert.Equal(t, map[string]any{"name": "Renamed", "voc": 48.2}, body,
		"only supplied fields go on the wire")
}

func TestUpdateRejectsSuppliedEmptyField(t *testing.T) {
	service, calls := countingService(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := service.Update(context.Background(), 3, map[string]string{"name": ""})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "missing required fields: name", validation.Message)
	assert.Zero(t, calls.Load())
}

func TestUpdateNotFound(t *testing.T) {
	service, _ := countingService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail": "Module not found"}`)
	})

	_, err := service.Update(context.Background(), 42, map[string]string{"voc": "48.0"})
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, 42, notFound.ID)
}

func TestDeleteReturnsConfirmation(t *testing.T) {
	service, _ := countingService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"detail": "Module 5 deleted"}`)
	})

	detail, err := service.Delete(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Module 5 deleted", detail)
}

func TestDeleteManyPartialSuccess(t *testing.T) {
	service, _ := countingService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/modules/99999" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"detail": "Module not found"}`)
			return
		}
		fmt.Fprintf(w, `{"detail": "Module %s deleted"}`, r.URL.Path[len("/modules/"):])
	})

	confirmations := service.DeleteMany(context.Background(), []int{1, 99999, 2})
	assert.Equal(t, []string{"Module 1 deleted", "Module 2 deleted"}, confirmations,
		"failures are dropped, successes keep input order")
}

func TestDeleteManyEmptyInputMakesNoCalls(t *testing.T) {
	service, calls := countingService(t, func(w http.ResponseWriter, r *http.Request) {})

	confirmations := service.DeleteMany(context.Background(), nil)
	assert.Empty(t, confirmations)
	assert.Zero(t, calls.Load())
}

func TestDeleteManyAllFailReturnsEmptyNotError(t *testing.T) {
	service, calls := countingService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail": "Module not found"}`)
	})

	confirmations := service.DeleteMany(context.Background(), []int{8, 9})
	assert.NotNil(t, confirmations)
	assert.Empty(t, confirmations)
	assert.Equal(t, int64(2), calls.Load(), "each id is still attempted")
}

func TestNameExistsCaseInsensitive(t *testing.T) {
	service, _ := countingService(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 3, "name": "Test Solar Panel"}, {"id": 4, "name": "Other"}]`)
	})

	ctx := context.Background()
	assert.True(t, service.NameExists(ctx, "TEST SOLAR PANEL", 0))
	assert.False(t, service.NameExists(ctx, "Test Solar Panel", 3),
		"a record being renamed must not collide with itself")
	assert.True(t, service.NameExists(ctx, "test solar panel", 4))
	assert.False(t, service.NameExists(ctx, "Unknown Panel", 0))
}

func TestNameExistsFailsOpen(t *testing.T) {
	service, _ := countingService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	assert.False(t, service.NameExists(context.Background(), "Test Solar Panel", 0))
}
