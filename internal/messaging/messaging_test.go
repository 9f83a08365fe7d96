package messaging

import (
	"testing"

	"github.com/tezrelay/relay/internal/models"
)

func testService() *Service {
	return &Service{
		host: "relay-a.example.com",
		limits: Limits{
			MaxSurfaceTextBytes: 500,
			MaxContextItems:     10,
			MaxRecipients:       20,
		},
	}
}

func validShareInput() ShareInput {
	return ShareInput{
		SurfaceText: "build is green",
		Type:        models.TezTypeUpdate,
		Urgency:     models.UrgencyNormal,
		Visibility:  models.VisibilityPrivate,
	}
}

func TestValidateAcceptsWellFormedInput(t *testing.T) {
	s := testService()
	if err := s.validate(validShareInput()); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestValidateRejectsEmptySurfaceText(t *testing.T) {
	s := testService()
	in := validShareInput()
	in.SurfaceText = ""
	if err := s.validate(in); err != ErrSurfaceTextEmpty {
		t.Errorf("err = %v, want ErrSurfaceTextEmpty", err)
	}
}

func TestValidateRejectsOversizeSurfaceText(t *testing.T) {
	s := testService()
	in := validShareInput()
	big := make([]byte, s.limits.MaxSurfaceTextBytes+1)
	for i := range big {
		big[i] = 'x'
	}
	in.SurfaceText = string(big)
	if err := s.validate(in); err != ErrSurfaceTextTooLong {
		t.Errorf("err = %v, want ErrSurfaceTextTooLong", err)
	}
}

func TestValidateRejectsUnknownType(t *testing.T) {
	s := testService()
	in := validShareInput()
	in.Type = "bogus"
	if err := s.validate(in); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestValidateRejectsUnknownUrgency(t *testing.T) {
	s := testService()
	in := validShareInput()
	in.Urgency = "bogus"
	if err := s.validate(in); err == nil {
		t.Fatal("expected error for unknown urgency")
	}
}

func TestValidateRejectsUnknownVisibility(t *testing.T) {
	s := testService()
	in := validShareInput()
	in.Visibility = "bogus"
	if err := s.validate(in); err == nil {
		t.Fatal("expected error for unknown visibility")
	}
}

func TestValidateRejectsTooManyContextItems(t *testing.T) {
	s := testService()
	in := validShareInput()
	in.Context = make([]ContextInput, s.limits.MaxContextItems+1)
	if err := s.validate(in); err != ErrTooManyContextItems {
		t.Errorf("err = %v, want ErrTooManyContextItems", err)
	}
}

func TestValidateRejectsTooManyRecipients(t *testing.T) {
	s := testService()
	in := validShareInput()
	in.Recipients = make([]string, s.limits.MaxRecipients+1)
	if err := s.validate(in); err != ErrTooManyRecipients {
		t.Errorf("err = %v, want ErrTooManyRecipients", err)
	}
}

func TestContainsHelper(t *testing.T) {
	if !contains(models.TezTypes, models.TezTypeNote) {
		t.Error("expected TezTypeNote to be in TezTypes")
	}
	if contains(models.TezTypes, "not-a-type") {
		t.Error("expected unknown type to be absent")
	}
}
