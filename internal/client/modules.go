package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// Module mirrors the server's PV module record.
type Module struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Voc      float64 `json:"voc"`
	Isc      float64 `json:"isc"`
	Vmp      float64 `json:"vmp"`
	Imp      float64 `json:"imp"`
	Ns       int     `json:"ns"`
	Kv       float64 `json:"kv"`
	Ki       float64 `json:"ki"`
	GammaPmp float64 `json:"gamma_pmp"`
	Celltype string  `json:"celltype"`
}

// Celltypes is the fixed set of accepted cell technologies, validated here
// before dispatch and again server-side.
var Celltypes = []string{"monoSi", "multiSi", "polySi", "cis", "cigs", "cdte", "amorphous"}

// ModuleForm carries raw form input for a create. Values are strings as they
// arrive from the UI; validation parses them.
type ModuleForm struct {
	Name     string
	Voc      string
	Isc      string
	Vmp      string
	Imp      string
	Ns       string
	Kv       string
	Ki       string
	GammaPmp string
	Celltype string
}

func (f ModuleForm) fields() map[string]string {
	return map[string]string{
		"name":      f.Name,
		"voc":       f.Voc,
		"isc":       f.Isc,
		"vmp":       f.Vmp,
		"imp":       f.Imp,
		"ns":        f.Ns,
		"kv":        f.Kv,
		"ki":        f.Ki,
		"gamma_pmp": f.GammaPmp,
		"celltype":  f.Celltype,
	}
}

var (
	requiredFields = []string{"name", "voc", "isc", "vmp", "imp", "ns", "kv", "ki", "celltype", "gamma_pmp"}
	numericFields  = []string{"voc", "isc", "vmp", "imp", "ns", "kv", "ki", "gamma_pmp"}
	positiveFields = []string{"voc", "isc", "vmp", "imp"}
)

// ModuleService is the validated, error-normalized façade over module
// persistence.
type ModuleService struct {
	transport *Transport
	logger    *log.Logger
}

func NewModuleService(transport *Transport, logger *log.Logger) *ModuleService {
	if logger == nil {
		logger = log.Default()
	}
	return &ModuleService{transport: transport, logger: logger}
}

// List fetches modules in server order. Nil skip/limit leave paging to the
// server default.
func (s *ModuleService) List(ctx context.Context, skip, limit *int) ([]Module, error) {
	query := url.Values{}
	if skip != nil {
		query.Set("skip", strconv.Itoa(*skip))
	}
	if limit != nil {
		query.Set("limit", strconv.Itoa(*limit))
	}

	resp, err := s.transport.Get(ctx, "/modules", query)
	if err != nil {
		s.logger.Printf("list modules: %v", err)
		return nil, ErrLoadModules
	}

	var modules []Module
	if err := json.Unmarshal(resp.Body, &modules); err != nil {
		s.logger.Printf("list modules: decoding: %v", err)
		return nil, ErrLoadModules
	}
	return modules, nil
}

func (s *ModuleService) GetByID(ctx context.Context, id int) (*Module, error) {
	resp, err := s.transport.Get(ctx, fmt.Sprintf("/modules/%d", id), nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, &NotFoundError{Resource: "module", ID: id}
		}
		s.logger.Printf("get module %d: %v", id, err)
		return nil, ErrLoadModules
	}

	var module Module
	if err := json.Unmarshal(resp.Body, &module); err != nil {
		s.logger.Printf("get module %d: decoding: %v", id, err)
		return nil, ErrLoadModules
	}
	return &module, nil
}

// Create validates the form (all fields required) and posts it. A 400 from
// the server, e.g. a duplicate name, is forwarded verbatim.
func (s *ModuleService) Create(ctx context.Context, form ModuleForm) (*Module, error) {
	payload, err := validateFields(form.fields(), true)
	if err != nil {
		return nil, err
	}

	resp, err := s.transport.Post(ctx, "/modules", payload)
	if err != nil {
		var status *StatusError
		if errors.As(err, &status) && status.Code == http.StatusBadRequest {
			return nil, &ConflictError{Detail: status.Detail}
		}
		s.logger.Printf("create module: %v", err)
		return nil, ErrCreateModule
	}

	var module Module
	if err := json.Unmarshal(resp.Body, &module); err != nil {
		s.logger.Printf("create module: decoding: %v", err)
		return nil, ErrCreateModule
	}
	return &module, nil
}

// Update applies a partial update; only the supplied fields are validated and
// sent, everything else stays untouched server-side.
func (s *ModuleService) Update(ctx context.Context, id int, fields map[string]string) (*Module, error) {
	payload, err := validateFields(fields, false)
	if err != nil {
		return nil, err
	}

	resp, err := s.transport.Put(ctx, fmt.Sprintf("/modules/%d", id), payload)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, &NotFoundError{Resource: "module", ID: id}
		}
		var status *StatusError
		if errors.As(err, &status) && status.Code == http.StatusBadRequest {
			return nil, &ConflictError{Detail: status.Detail}
		}
		s.logger.Printf("update module %d: %v", id, err)
		return nil, ErrUpdateModule
	}

	var module Module
	if err := json.Unmarshal(resp.Body, &module); err != nil {
		s.logger.Printf("update module %d: decoding: %v", id, err)
		return nil, ErrUpdateModule
	}
	return &module, nil
}

// Delete removes one module and returns the server's confirmation string.
func (s *ModuleService) Delete(ctx context.Context, id int) (string, error) {
	resp, err := s.transport.Delete(ctx, fmt.Sprintf("/modules/%d", id))
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return "", &NotFoundError{Resource: "module", ID: id}
		}
		s.logger.Printf("delete module %d: %v", id, err)
		return "", ErrDeleteModule
	}
	return decodeDetail(resp.Body), nil
}

// DeleteMany deletes each id concurrently and independently; one bad id never
// aborts the rest. It joins all outcomes, returns the confirmations for the
// ids that succeeded (input order) and logs the failures as one batch
// warning. All ids failing yields an empty slice, not an error.
func (s *ModuleService) DeleteMany(ctx context.Context, ids []int) []string {
	if len(ids) == 0 {
		return []string{}
	}

	confirmations := make([]string, len(ids))
	failures := make([]error, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			detail, err := s.Delete(ctx, id)
			if err != nil {
				failures[i] = fmt.Errorf("module %d: %w", id, err)
				return
			}
			confirmations[i] = detail
		}(i, id)
	}
	wg.Wait()

	results := make([]string, 0, len(ids))
	var failed []error
	for i := range ids {
		if failures[i] != nil {
			failed = append(failed, failures[i])
			continue
		}
		results = append(results, confirmations[i])
	}

	if len(failed) > 0 {
		s.logger.Printf("delete batch: %d of %d deletions failed: %v", len(failed), len(ids), failed)
	}
	return results
}

// NameExists reports whether another module already carries the name,
// case-insensitively. excludeID skips the record being renamed so it does not
// collide with itself; pass 0 for no exclusion. A failed listing reports
// false rather than raising, so an unrelated fetch problem never blocks a
// form.
func (s *ModuleService) NameExists(ctx context.Context, name string, excludeID int) bool {
	modules, err := s.List(ctx, nil, nil)
	if err != nil {
		s.logger.Printf("name check for %q skipped: %v", name, err)
		return false
	}

	for _, m := range modules {
		if excludeID != 0 && m.ID == excludeID {
			continue
		}
		if strings.EqualFold(m.Name, name) {
			return true
		}
	}
	return false
}

// validateFields runs the ordered validation rules over raw form values and
// builds the typed wire payload. With requireAll set every required field
// must be present and non-empty (create); otherwise only supplied fields are
// checked (partial update).
func validateFields(fields map[string]string, requireAll bool) (map[string]any, error) {
	var missing []string
	for _, name := range requiredFields {
		value, ok := fields[name]
		if !ok {
			if requireAll {
				missing = append(missing, name)
			}
			continue
		}
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Message: "missing required fields: " + strings.Join(missing, ", ")}
	}

	parsed := make(map[string]float64)
	var badNumeric []string
	for _, name := range numericFields {
		value, ok := fields[name]
		if !ok {
			continue
		}
		number, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			badNumeric = append(badNumeric, name)
			continue
		}
		parsed[name] = number
	}
	if len(badNumeric) > 0 {
		return nil, &ValidationError{Message: "fields must be numeric: " + strings.Join(badNumeric, ", ")}
	}

	var notPositive []string
	for _, name := range positiveFields {
		if value, ok := parsed[name]; ok && value <= 0 {
			notPositive = append(notPositive, name)
		}
	}
	if len(notPositive) > 0 {
		return nil, &ValidationError{Message: "fields must be positive: " + strings.Join(notPositive, ", ")}
	}

	if ns, ok := parsed["ns"]; ok {
		if ns <= 0 || ns != math.Trunc(ns) {
			return nil, &ValidationError{Message: "ns must be a positive integer"}
		}
	}

	if celltype, ok := fields["celltype"]; ok {
		valid := false
		for _, ct := range Celltypes {
			if ct == celltype {
				valid = true
				break
			}
		}
		if !valid {
			return nil, &ValidationError{Message: "celltype must be one of: " + strings.Join(Celltypes, ", ")}
		}
	}

	payload := make(map[string]any, len(fields))
	for name, value := range fields {
		switch name {
		case "name", "celltype":
			payload[name] = value
		case "ns":
			payload[name] = int(parsed[name])
		case "voc", "isc", "vmp", "imp", "kv", "ki", "gamma_pmp":
			payload[name] = parsed[name]
		}
	}
	return payload, nil
}

func isStatus(err error, code int) bool {
	var status *StatusError
	return errors.As(err, &status) && status.Code == code
}
