package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aurum-saas/aurum-server/internal/ledger"
	"github.com/aurum-saas/aurum-server/internal/models"
	"github.com/aurum-saas/aurum-server/internal/storage"
	"github.com/aurum-saas/aurum-server/internal/tenant"
	"github.com/aurum-saas/aurum-server/pkg/crypto"
)

// ========== Auth handlers ==========

// HandleLogin handles platform user login
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Get user
	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	// Verify password
	if !s.auth.VerifyPassword(req.Password, user.PasswordHash) {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	// Check user status
	if !user.IsActive {
		s.respondError(w, http.StatusForbidden, "account is disabled")
		return
	}

	// Generate tokens
	accessToken, refreshToken, err := s.auth.GenerateTokenPair(user)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// HandleRefresh handles token refresh
func (s *RESTServer) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, err := s.auth.ParseRefreshToken(req.RefreshToken)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	accessToken, refreshToken, err := s.auth.GenerateTokenPair(user)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// ========== Tenant handlers ==========

// HandleListTenants lists tenants
func (s *RESTServer) HandleListTenants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	tenants, total, err := s.store.ListTenants(ctx, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"tenants": tenants,
		"total":   total,
	})
}

// HandleRegisterTenant registers a tenant and provisions its schema
func (s *RESTServer) HandleRegisterTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name" validate:"required,min=3,max=100"`
		Subdomain  string `json:"subdomain" validate:"required,subdomain,max=63"`
		Plan       string `json:"plan" validate:"oneof=BASIC PROFESSIONAL ENTERPRISE"`
		OwnerEmail string `json:"owner_email" validate:"required,email"`
		OwnerName  string `json:"owner_name"`
		Phone      string `json:"phone"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := s.provisioner.Provision(r.Context(), tenant.ProvisionRequest{
		Name:      req.Name,
		Subdomain: req.Subdomain,
		Plan:      models.SubscriptionPlan(req.Plan),
		ContactInfo: models.Variables{
			"email": req.OwnerEmail,
			"phone": req.Phone,
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicateKey):
			s.respondError(w, http.StatusConflict, "subdomain already registered")
		case errors.Is(err, storage.ErrInvalidData):
			s.respondError(w, http.StatusBadRequest, err.Error())
		default:
			// Provisioning failures surface loudly to the registration
			// caller; nothing is silently retried.
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	tempPassword, err := s.createOwnerUser(r, t, req.OwnerEmail, req.OwnerName)
	if err != nil {
		log.Error().Err(err).
			Str("tenant_id", t.ID.String()).
			Msg("Failed to create tenant owner user")
		s.respondError(w, http.StatusInternalServerError, "tenant provisioned but owner creation failed")
		return
	}

	s.publishTenantEvent(t.ID.String(), "created")

	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"tenant":         t,
		"owner_email":    req.OwnerEmail,
		"owner_password": tempPassword,
	})
}

// createOwnerUser creates the initial tenant owner with a generated password
func (s *RESTServer) createOwnerUser(r *http.Request, t *models.Tenant, email, name string) (string, error) {
	tempPassword, err := crypto.GenerateRandomString(12)
	if err != nil {
		return "", err
	}

	hash, err := crypto.HashPassword(tempPassword)
	if err != nil {
		return "", err
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     name,
		TenantID:     &t.ID,
		IsActive:     true,
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		return "", err
	}

	return tempPassword, nil
}

// HandleGetTenant gets a tenant
func (s *RESTServer) HandleGetTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, t)
}

// HandleUpdateTenant updates tenant name, plan, status or the kill switch
func (s *RESTServer) HandleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	var req struct {
		Name     string `json:"name" validate:"required,min=3,max=100"`
		Plan     string `json:"plan" validate:"oneof=BASIC PROFESSIONAL ENTERPRISE"`
		Status   string `json:"status" validate:"oneof=TRIAL ACTIVE SUSPENDED EXPIRED"`
		IsActive *bool  `json:"is_active"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	t.Name = req.Name
	if req.Plan != "" {
		t.SubscriptionPlan = models.SubscriptionPlan(req.Plan)
	}
	if req.Status != "" {
		t.Status = models.TenantStatus(req.Status)
	}
	if req.IsActive != nil {
		t.IsActive = *req.IsActive
	}

	if err := s.store.UpdateTenant(ctx, t); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.invalidateTenant(t)
	s.publishTenantEvent(t.ID.String(), "updated")

	s.respondJSON(w, http.StatusOK, t)
}

// HandleSuspendTenant suspends a tenant
func (s *RESTServer) HandleSuspendTenant(w http.ResponseWriter, r *http.Request) {
	s.setTenantStatus(w, r, models.TenantStatusSuspended, "suspended")
}

// HandleActivateTenant reactivates a tenant
func (s *RESTServer) HandleActivateTenant(w http.ResponseWriter, r *http.Request) {
	s.setTenantStatus(w, r, models.TenantStatusActive, "updated")
}

func (s *RESTServer) setTenantStatus(w http.ResponseWriter, r *http.Request, status models.TenantStatus, event string) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	t.Status = status
	if status == models.TenantStatusSuspended {
		now := time.Now()
		t.SuspendedAt = &now
	} else {
		t.SuspendedAt = nil
	}

	if err := s.store.UpdateTenant(ctx, t); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.invalidateTenant(t)
	s.publishTenantEvent(t.ID.String(), event)

	s.respondJSON(w, http.StatusOK, t)
}

// invalidateTenant drops the local directory entry and closes the cached
// connection handle after a tenant mutation. Remote instances learn the same
// through the published NATS event.
func (s *RESTServer) invalidateTenant(t *models.Tenant) {
	s.directory.Invalidate(t.ID.String())
	s.registry.Invalidate(t.ID)
}

// HandleTenantHealth reports whether the tenant's schema answers a round trip
func (s *RESTServer) HandleTenantHealth(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	healthy := s.registry.HealthCheck(r.Context(), id)

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	s.respondJSON(w, status, map[string]interface{}{
		"tenant_id": id,
		"healthy":   healthy,
	})
}

// ========== Customer handlers ==========

// HandleListCustomers lists customers in the tenant's schema
func (s *RESTServer) HandleListCustomers(w http.ResponseWriter, r *http.Request) {
	t := tenantFromContext(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	var customers []*models.Customer
	err := s.registry.WithConnection(r.Context(), t.ID, func(db *sql.DB) error {
		rows, err := db.QueryContext(r.Context(), `
			SELECT id, created_at, updated_at, name, phone, email, address, current_balance
			FROM customers
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2`, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			c := &models.Customer{}
			if err := rows.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.Name,
				&c.Phone, &c.Email, &c.Address, &c.CurrentBalance); err != nil {
				return err
			}
			customers = append(customers, c)
		}
		return rows.Err()
	})
	if err != nil {
		s.respondTenantError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"customers": customers,
	})
}

// HandleCreateCustomer creates a customer in the tenant's schema
func (s *RESTServer) HandleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	t := tenantFromContext(r.Context())

	var req struct {
		Name    string `json:"name" validate:"required,min=2,max=200"`
		Phone   string `json:"phone"`
		Email   string `json:"email" validate:"email"`
		Address string `json:"address"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	customer := &models.Customer{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     req.Email,
		Address:   req.Address,
	}

	err := s.registry.WithConnection(r.Context(), t.ID, func(db *sql.DB) error {
		_, err := db.ExecContext(r.Context(), `
			INSERT INTO customers (id, created_at, updated_at, name, phone, email, address, current_balance)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 0)`,
			customer.ID, customer.CreatedAt, customer.UpdatedAt, customer.Name,
			customer.Phone, customer.Email, customer.Address)
		return err
	})
	if err != nil {
		s.respondTenantError(w, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, customer)
}

// HandleGetCustomer gets a customer from the tenant's schema
func (s *RESTServer) HandleGetCustomer(w http.ResponseWriter, r *http.Request) {
	t := tenantFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid customer id")
		return
	}

	customer := &models.Customer{}
	err = s.registry.WithConnection(r.Context(), t.ID, func(db *sql.DB) error {
		return db.QueryRowContext(r.Context(), `
			SELECT id, created_at, updated_at, name, phone, email, address, current_balance
			FROM customers WHERE id = $1`, id).
			Scan(&customer.ID, &customer.CreatedAt, &customer.UpdatedAt,
				&customer.Name, &customer.Phone, &customer.Email,
				&customer.Address, &customer.CurrentBalance)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			s.respondError(w, http.StatusNotFound, "customer not found")
			return
		}
		s.respondTenantError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, customer)
}

// ========== Ledger handlers ==========

// HandleApplyLedgerEntry applies a balance-affecting ledger entry
func (s *RESTServer) HandleApplyLedgerEntry(w http.ResponseWriter, r *http.Request) {
	t := tenantFromContext(r.Context())

	customerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid customer id")
		return
	}

	var req struct {
		EntryType   string `json:"entry_type" validate:"required,oneof=DEBIT CREDIT OPENING_BALANCE ADJUSTMENT"`
		Amount      int64  `json:"amount"`
		Description string `json:"description" validate:"max=500"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := s.ledger.ApplyEntry(r.Context(), t.ID, customerID,
		models.EntryType(req.EntryType), req.Amount, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrOwnerNotFound):
			s.respondError(w, http.StatusNotFound, "customer not found")
		case errors.Is(err, ledger.ErrUnknownEntryType):
			s.respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.respondTenantError(w, err)
		}
		return
	}

	s.respondJSON(w, http.StatusCreated, entry)
}

// HandleListLedgerEntries lists a customer's ledger entries
func (s *RESTServer) HandleListLedgerEntries(w http.ResponseWriter, r *http.Request) {
	t := tenantFromContext(r.Context())

	customerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid customer id")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := s.ledger.ListEntries(r.Context(), t.ID, customerID, limit, offset)
	if err != nil {
		s.respondTenantError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

// ========== Helper methods ==========

// HandleHealth health check
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	})
}

// HandleRoot root handler
func (s *RESTServer) HandleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": s.config.Server.Name,
		"version": s.config.Server.Version,
		"health":  "/api/v1/health",
	})
}

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
