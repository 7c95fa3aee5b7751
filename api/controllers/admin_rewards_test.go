package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/coachcredits-backend/internal/credits"
	"github.com/angelmondragon/coachcredits-backend/internal/rewards"
	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/coachcredits-backend/pkg/errors"
)

type fakeRewards struct {
	granted map[string]bool
	last    rewards.ReferralInput
	trialed []uuid.UUID
}

func newFakeRewards() *fakeRewards {
	return &fakeRewards{granted: map[string]bool{}}
}

func (f *fakeRewards) GrantReferralReward(_ context.Context, input rewards.ReferralInput) (*rewards.ReferralResult, error) {
	f.last = input
	if f.granted[input.ReferralID] {
		return &rewards.ReferralResult{ReferralID: input.ReferralID}, nil
	}
	f.granted[input.ReferralID] = true
	return &rewards.ReferralResult{Granted: true, ReferralID: input.ReferralID, Credits: 10}, nil
}

func (f *fakeRewards) GrantSignupTrial(_ context.Context, userID uuid.UUID) (credits.TrialResult, error) {
	f.trialed = append(f.trialed, userID)
	return credits.TrialResult{Granted: true, Credits: 25, Balance: 25}, nil
}

type fakeAuditor struct {
	report *credits.AuditReport
}

func (f fakeAuditor) Audit(context.Context, uuid.UUID) (*credits.AuditReport, error) {
	if f.report == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	return f.report, nil
}

func referralRequest(referralID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/referrals/"+referralID+"/reward", strings.NewReader(body))
	return withURLParams(req, map[string]string{"referralId": referralID})
}

func TestAdminGrantReferralRewardOnce(t *testing.T) {
	svc := newFakeRewards()
	handler := AdminGrantReferralReward(svc, testLogger())
	body := `{"referrer_user_id":"` + uuid.NewString() + `"}`

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, referralRequest("ref-9", body))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, referralRequest("ref-9", body))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat got %d", resp.Code)
	}
	if svc.last.RewardType != "" {
		t.Fatalf("reward type should default in the service, got %q", svc.last.RewardType)
	}
}

func TestAdminGrantReferralRewardPremiumDays(t *testing.T) {
	svc := newFakeRewards()
	body := `{"referrer_user_id":"` + uuid.NewString() + `","reward_type":"premium_days"}`

	resp := httptest.NewRecorder()
	AdminGrantReferralReward(svc, testLogger()).ServeHTTP(resp, referralRequest("ref-10", body))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	if svc.last.RewardType != enums.RewardTypePremiumDays {
		t.Fatalf("unexpected reward type %q", svc.last.RewardType)
	}
}

func TestAdminGrantReferralRewardValidation(t *testing.T) {
	svc := newFakeRewards()
	cases := []string{
		`{}`,
		`{"referrer_user_id":"nope"}`,
		`{"referrer_user_id":"` + uuid.NewString() + `","reward_type":"cash"}`,
	}
	for _, body := range cases {
		resp := httptest.NewRecorder()
		AdminGrantReferralReward(svc, testLogger()).ServeHTTP(resp, referralRequest("ref-11", body))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400 got %d", body, resp.Code)
		}
	}
	if len(svc.granted) != 0 {
		t.Fatal("invalid requests must not reach the service")
	}
}

func TestAdminGrantTrial(t *testing.T) {
	svc := newFakeRewards()
	userID := uuid.New()

	req := withURLParams(httptest.NewRequest(http.MethodPost, "/", nil), map[string]string{"userId": userID.String()})
	resp := httptest.NewRecorder()
	AdminGrantTrial(svc, testLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if len(svc.trialed) != 1 || svc.trialed[0] != userID {
		t.Fatalf("unexpected trial calls %v", svc.trialed)
	}

	req = withURLParams(httptest.NewRequest(http.MethodPost, "/", nil), map[string]string{"userId": "bad"})
	resp = httptest.NewRecorder()
	AdminGrantTrial(svc, testLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminCreditAudit(t *testing.T) {
	userID := uuid.New()
	auditor := fakeAuditor{report: &credits.AuditReport{UserID: userID, Balance: 5, LedgerSum: 4, Consistent: false}}

	req := withURLParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"userId": userID.String()})
	resp := httptest.NewRecorder()
	AdminCreditAudit(auditor, testLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"consistent":false`) {
		t.Fatalf("expected drift to be reported, got %s", resp.Body.String())
	}
}
