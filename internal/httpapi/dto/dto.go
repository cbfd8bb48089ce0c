// Package dto holds the request bodies settld's HTTP layer decodes and
// struct-tag validates before anything reaches domain code, grounded on the
// teacher's WithBody/ValidateStruct pattern (common/net/http/withBody.go)
// but built on github.com/go-playground/validator/v10 directly rather than
// the teacher's vendored v9 fork, since v10 is what this module already
// depends on.
package dto

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/settld/core/pkg/errs"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// Validate runs struct-tag validation over s, translating the first batch
// of field errors into an errs.ValidationFieldsError the way the teacher's
// malformedRequestErr does.
func Validate(s any) error {
	if err := validate.Struct(s); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return errs.ValidationFieldsError{Code: errs.ErrBadRequest.Error(), Message: err.Error()}
		}

		fields := make(errs.FieldValidations, len(fieldErrs))

		for _, fe := range fieldErrs {
			fields[fe.Field()] = fe.Tag()
		}

		return errs.ValidationFieldsError{
			Code:    errs.ErrMissingFieldsInRequest.Error(),
			Message: "the request failed field validation",
			Fields:  fields,
		}
	}

	return nil
}

// EventEnvelope is the generic shape every aggregate event-append endpoint
// accepts: a free-form payload plus an optional actor override (default is
// derived from auth context by the handler).
type EventEnvelope struct {
	Actor   *ActorDTO      `json:"actor,omitempty"`
	Payload map[string]any `json:"payload" validate:"required"`
}

// ActorDTO mirrors internal/domain/event.Actor for request decoding.
type ActorDTO struct {
	Type string `json:"type" validate:"required"`
	ID   string `json:"id" validate:"required"`
}

// CreateJobRequest is the body of POST /jobs.
type CreateJobRequest struct {
	JobID      string `json:"jobId" validate:"required"`
	TemplateID string `json:"templateId" validate:"required"`
	CustomerID string `json:"customerId" validate:"required"`
	SiteID     string `json:"siteId" validate:"required"`
}

// RegisterRobotRequest is the body of POST /robots/register.
type RegisterRobotRequest struct {
	RobotID     string `json:"robotId" validate:"required"`
	ZoneID      string `json:"zoneId" validate:"required"`
	SignerKeyID string `json:"signerKeyId"`
}

// RegisterOperatorRequest is the body of POST /operators/register.
type RegisterOperatorRequest struct {
	OperatorID    string `json:"operatorId" validate:"required"`
	ZoneID        string `json:"zoneId" validate:"required"`
	SignerKeyID   string `json:"signerKeyId"`
	MaxConcurrent int    `json:"maxConcurrent" validate:"min=0"`
}

// RegisterAgentRequest is the body of POST /agents/register.
type RegisterAgentRequest struct {
	AgentID  string `json:"agentId" validate:"required"`
	Currency string `json:"currency" validate:"required,len=3"`
}

// CreditWalletRequest is the body of POST /agents/{id}/wallet/credit.
type CreditWalletRequest struct {
	AmountCents int64 `json:"amountCents" validate:"required,gt=0"`
}

// CreateMarketplaceTaskRequest is the body of POST /marketplace/tasks.
type CreateMarketplaceTaskRequest struct {
	TaskID      string `json:"taskId" validate:"required"`
	AmountCents int64  `json:"amountCents" validate:"required,gt=0"`
}

// BidRequest is the body of the bid/counter-offer/accept marketplace flows.
type BidRequest struct {
	AgentID     string `json:"agentId" validate:"required"`
	AmountCents int64  `json:"amountCents" validate:"required,gt=0"`
	Status      string `json:"status" validate:"required,oneof=open countered accepted rejected"`
}

// PutTenantPolicyRequest is the body of POST /marketplace/settlement-policies.
type PutTenantPolicyRequest struct {
	Key           string         `json:"key" validate:"required"`
	ValueJSON     map[string]any `json:"value" validate:"required"`
	EffectiveFrom string         `json:"effectiveFrom" validate:"required"`
}

// SettlementResolveRequest is the body of POST /runs/{id}/settlement/resolve.
type SettlementResolveRequest struct {
	VerificationMethod string `json:"verificationMethod" validate:"required"`
	VerificationStatus string `json:"verificationStatus" validate:"required"`
	AmountCents        int64  `json:"amountCents" validate:"required,gt=0"`
}

// DisputeOpenRequest is the body of POST /runs/{id}/dispute/open.
type DisputeOpenRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// DisputeCloseRequest is the body of POST /runs/{id}/dispute/close.
type DisputeCloseRequest struct {
	Outcome          string `json:"outcome" validate:"required,oneof=payer_wins payee_wins partial"`
	ReleaseRatePct   int    `json:"releaseRatePct" validate:"min=0,max=100"`
	VerdictSignature string `json:"verdictSignature" validate:"required"`
}

// ExportsAckRequest is the body of POST /exports/ack, HMAC-signed by the
// destination per spec.md §4.8.
type ExportsAckRequest struct {
	DeliveryID string `json:"deliveryId" validate:"required"`
	Signature  string `json:"signature" validate:"required"`
}
