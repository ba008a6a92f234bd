package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"imgwaved/internal/license"
	api "imgwaved/pkg/contracts/api/v1"
)

// ErrLicenseNotFound is returned by lookups for keys that do not exist.
// Transport maps it to 404; policy refusals ride inside the response DTOs.
var ErrLicenseNotFound = errors.New("license not found")

// LicenseService is the transport-facing facade over license.Manager.
// It translates domain results into wire contracts and never exposes
// domain types to handlers.
type LicenseService interface {
	Validate(ctx context.Context, req api.ValidateRequest) (*api.ValidateResponse, error)
	Transfer(ctx context.Context, req api.TransferRequest) (*api.TransferResponse, error)
	CreateLicense(ctx context.Context, req api.CreateLicenseRequest) (*api.CreateLicenseResponse, error)
	ForgotLicense(ctx context.Context, email string) (*api.ForgotLicenseResponse, error)
	Info(ctx context.Context, licenseKey string) (*api.LicenseInfoResponse, error)
	RefundStatus(ctx context.Context, licenseKey string) (*api.RefundStatusResponse, error)
	OfflineCheck(ctx context.Context, licenseKey string) (*api.OfflineCheckResponse, error)
	TrialEligibility(ctx context.Context, req api.TrialEligibilityRequest) (*api.TrialEligibilityResponse, error)
	TrialCreate(ctx context.Context, req api.TrialCreateRequest) (*api.TrialCreateResponse, error)
	TrialStatus(ctx context.Context, licenseKey string) (*api.TrialStatusResponse, error)
	Status(ctx context.Context) *api.StatusResponse
}

type licenseService struct {
	manager *license.Manager
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewLicenseService creates the service. A nil tracer disables spans.
func NewLicenseService(manager *license.Manager, logger *slog.Logger, tracer trace.Tracer) LicenseService {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("imgwaved")
	}
	return &licenseService{
		manager: manager,
		logger:  logger,
		tracer:  tracer,
		now:     time.Now,
	}
}

func (s *licenseService) Validate(ctx context.Context, req api.ValidateRequest) (*api.ValidateResponse, error) {
	ctx, span := s.tracer.Start(ctx, "license.validate",
		trace.WithAttributes(
			attribute.String("license.key", license.MaskKey(req.LicenseKey)),
			attribute.Bool("license.offline", req.IsOffline),
		))
	defer span.End()

	result, err := s.manager.Validate(ctx, license.ValidateInput{
		Email:      req.Email,
		LicenseKey: req.LicenseKey,
		HardwareID: req.HardwareID,
		DeviceName: req.DeviceName,
		IsOffline:  req.IsOffline,
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("license.valid", result.Success),
		attribute.String("license.code", string(result.Code)),
	)

	resp := &api.ValidateResponse{
		Success:     result.Success,
		Code:        string(result.Code),
		Message:     result.Message,
		IsTrial:     result.IsTrial,
		BoundDevice: result.BoundDevice,
	}
	if !result.Expires.IsZero() {
		expires := result.Expires
		resp.Expires = &expires
	}
	return resp, nil
}

func (s *licenseService) Transfer(ctx context.Context, req api.TransferRequest) (*api.TransferResponse, error) {
	ctx, span := s.tracer.Start(ctx, "license.transfer",
		trace.WithAttributes(attribute.String("license.key", license.MaskKey(req.LicenseKey))))
	defer span.End()

	outcome, err := s.manager.Transfer(ctx, req.Email, req.LicenseKey, req.HardwareID, req.DeviceName)
	if err != nil {
		return nil, err
	}

	return &api.TransferResponse{
		Success: outcome.Success,
		Code:    string(outcome.Code),
		Message: outcome.Message,
	}, nil
}

func (s *licenseService) CreateLicense(ctx context.Context, req api.CreateLicenseRequest) (*api.CreateLicenseResponse, error) {
	ctx, span := s.tracer.Start(ctx, "license.create")
	defer span.End()

	expiresDays := req.ExpiresDays
	if expiresDays == 0 {
		expiresDays = 365
	}
	rec, err := s.manager.CreateLicense(ctx, req.Email, req.CustomerName, expiresDays, nil)
	if err != nil {
		return nil, err
	}

	return &api.CreateLicenseResponse{
		LicenseKey: rec.LicenseKey,
		Email:      rec.Email,
		Expires:    rec.ExpiryDate,
	}, nil
}

func (s *licenseService) ForgotLicense(ctx context.Context, email string) (*api.ForgotLicenseResponse, error) {
	ctx, span := s.tracer.Start(ctx, "license.forgot")
	defer span.End()

	rec := s.manager.FindByEmail(ctx, email)
	if rec == nil {
		return &api.ForgotLicenseResponse{
			Success: false,
			Code:    string(license.CodeNoLicenseFound),
			Message: license.CodeNoLicenseFound.Message(),
		}, nil
	}

	s.logger.InfoContext(ctx, "license recovery",
		"license_key", license.MaskKey(rec.LicenseKey),
		"is_active", rec.IsActive,
	)

	expiry := rec.ExpiryDate
	return &api.ForgotLicenseResponse{
		Success:    true,
		Message:    "License found",
		LicenseKey: rec.LicenseKey,
		IsActive:   rec.IsActive,
		ExpiryDate: &expiry,
	}, nil
}

func (s *licenseService) Info(ctx context.Context, licenseKey string) (*api.LicenseInfoResponse, error) {
	rec := s.manager.Get(ctx, licenseKey)
	if rec == nil {
		return nil, ErrLicenseNotFound
	}

	var purchase *api.PurchaseEventView
	if history, err := s.manager.History(ctx, licenseKey); err == nil {
		for _, event := range history {
			if event.IsRefundEvent() {
				continue
			}
			purchase = &api.PurchaseEventView{
				EventID:     event.EventID,
				Timestamp:   event.Timestamp,
				Source:      string(event.Source),
				SaleID:      event.SaleID,
				ProductName: event.ProductName,
				Tier:        event.Tier,
				Price:       event.Price,
				Currency:    event.Currency,
			}
			break
		}
	}

	return &api.LicenseInfoResponse{
		LicenseKey:      rec.LicenseKey,
		Email:           rec.Email,
		CustomerName:    rec.CustomerName,
		Class:           string(rec.Class),
		CreatedDate:     rec.CreatedDate,
		ExpiryDate:      rec.ExpiryDate,
		IsActive:        rec.IsActive,
		HardwareID:      rec.HardwareID,
		DeviceName:      rec.DeviceName,
		LastValidation:  rec.LastValidation,
		ValidationCount: rec.ValidationCount,
		RefundDate:      rec.RefundDate,
		RefundReason:    rec.RefundReason,
		PurchaseSource:  string(rec.PurchaseSource),
		Purchase:        purchase,
	}, nil
}

func (s *licenseService) RefundStatus(ctx context.Context, licenseKey string) (*api.RefundStatusResponse, error) {
	status, ok := s.manager.RefundStatus(ctx, licenseKey)
	if !ok {
		return nil, ErrLicenseNotFound
	}

	return &api.RefundStatusResponse{
		LicenseKey:   status.LicenseKey,
		IsRefunded:   status.IsRefunded,
		IsActive:     status.IsActive,
		RefundDate:   status.RefundDate,
		RefundReason: status.RefundReason,
	}, nil
}

func (s *licenseService) OfflineCheck(ctx context.Context, licenseKey string) (*api.OfflineCheckResponse, error) {
	check, ok := s.manager.PreviewOffline(ctx, licenseKey)
	if !ok {
		return nil, ErrLicenseNotFound
	}

	return &api.OfflineCheckResponse{
		CanUseOffline:        check.CanUseOffline,
		IsTrial:              check.IsTrial,
		DaysSinceValidation:  check.DaysSinceValidation,
		GracePeriodRemaining: check.GraceDaysRemaining,
		Message:              check.Message,
	}, nil
}

func (s *licenseService) TrialEligibility(ctx context.Context, req api.TrialEligibilityRequest) (*api.TrialEligibilityResponse, error) {
	eligibility := s.manager.CheckTrialEligibility(ctx, req.Email, req.HardwareID)

	resp := &api.TrialEligibilityResponse{
		Eligible: eligibility.Eligible,
		Reason:   string(eligibility.Reason),
		Message:  eligibility.Message,
	}
	if eligibility.Eligible {
		resp.Message = "Eligible for free trial"
	}
	return resp, nil
}

func (s *licenseService) TrialCreate(ctx context.Context, req api.TrialCreateRequest) (*api.TrialCreateResponse, error) {
	ctx, span := s.tracer.Start(ctx, "trial.create")
	defer span.End()

	rec, refused, err := s.manager.CreateTrial(ctx, req.Email, req.HardwareID, req.DeviceName)
	if err != nil {
		return nil, err
	}
	if refused != nil {
		span.SetAttributes(attribute.String("trial.refusal", string(refused.Reason)))
		return &api.TrialCreateResponse{
			Success: false,
			Code:    string(refused.Reason),
			Message: refused.Message,
		}, nil
	}

	return &api.TrialCreateResponse{
		Success:    true,
		Message:    "Trial license created successfully",
		LicenseKey: rec.LicenseKey,
		Expires:    rec.ExpiryDate,
	}, nil
}

func (s *licenseService) TrialStatus(ctx context.Context, licenseKey string) (*api.TrialStatusResponse, error) {
	rec := s.manager.Get(ctx, licenseKey)
	if rec == nil {
		return nil, ErrLicenseNotFound
	}

	now := s.now()
	resp := &api.TrialStatusResponse{
		Success:  true,
		IsActive: rec.IsActive && !rec.IsExpired(now),
		Expires:  rec.ExpiryDate,
	}
	if !rec.IsTrial() {
		resp.Success = false
		resp.Code = "not_a_trial"
		resp.Message = "License is not a trial"
		return resp, nil
	}
	if remaining := rec.ExpiryDate.Sub(now); remaining > 0 {
		resp.HoursRemaining = remaining.Hours()
		resp.Message = "Trial active"
	} else {
		resp.Message = "Trial expired"
	}
	return resp, nil
}

func (s *licenseService) Status(ctx context.Context) *api.StatusResponse {
	return &api.StatusResponse{
		Status:       "ok",
		Service:      "imgwave-license-server",
		Version:      "1.0.0",
		Timestamp:    s.now().UTC(),
		LicenseCount: s.manager.Count(),
	}
}
