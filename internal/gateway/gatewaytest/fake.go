// Package gatewaytest provides an in-memory payment gateway for tests.
package gatewaytest

import (
	"context"
	"errors"
	"sync"

	"github.com/angelmondragon/agromarket-backend/internal/gateway"
	"github.com/angelmondragon/agromarket-backend/pkg/types"
)

// Fake is a programmable gateway.Port. The zero value accepts every session
// and validates every val_id.
type Fake struct {
	mu sync.Mutex

	InitErr         error
	FailedReason    string
	ValidateErr     error
	ValidationState string
	// Approved holds the transaction fields the validation API reports per val_id.
	Approved map[string]types.Fields

	Sessions    []gateway.SessionRequest
	Validations []string
}

var _ gateway.Port = (*Fake)(nil)

// ErrDown is a convenient transport failure.
var ErrDown = errors.New("gateway down")

func (f *Fake) InitSession(_ context.Context, req gateway.SessionRequest) (*gateway.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sessions = append(f.Sessions, req)
	if f.InitErr != nil {
		return nil, f.InitErr
	}
	if f.FailedReason != "" {
		return &gateway.Session{
			Status:       "FAILED",
			FailedReason: f.FailedReason,
			Raw:          types.Fields{"status": "FAILED", "failedreason": f.FailedReason},
		}, nil
	}
	return &gateway.Session{
		Status:      gateway.StatusSuccess,
		SessionKey:  "SESSION-" + req.TranID,
		GatewayURL:  "https://gateway.test/pay/" + req.TranID,
		RedirectURL: "https://gateway.test/redirect/" + req.TranID,
		Raw:         types.Fields{"status": gateway.StatusSuccess, "sessionkey": "SESSION-" + req.TranID},
	}, nil
}

func (f *Fake) Validate(_ context.Context, valID string) (*gateway.Validation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Validations = append(f.Validations, valID)
	if f.ValidateErr != nil {
		return nil, f.ValidateErr
	}
	status := f.ValidationState
	if status == "" {
		status = gateway.StatusValid
	}
	fields := types.Fields{"status": status, "val_id": valID, "bank_tran_id": "BANK-" + valID}
	for k, v := range f.Approved[valID] {
		fields[k] = v
	}
	return &gateway.Validation{Status: status, Fields: fields}, nil
}

// Approve makes the validation API report fields for valID.
func (f *Fake) Approve(valID string, fields types.Fields) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Approved == nil {
		f.Approved = map[string]types.Fields{}
	}
	f.Approved[valID] = fields
}

// SessionCount returns how many sessions were requested.
func (f *Fake) SessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sessions)
}

// LastSession returns the most recent session request.
func (f *Fake) LastSession() (gateway.SessionRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sessions) == 0 {
		return gateway.SessionRequest{}, false
	}
	return f.Sessions[len(f.Sessions)-1], true
}
