package payments

import (
	"testing"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/coachcredits-backend/pkg/errors"
)

func TestParseEventAcceptsNumericAndStringIDs(t *testing.T) {
	userID := uuid.New()
	payload := []byte(`{"meta":{"event_name":" Order_Created ","custom_data":{"user_id":"` + userID.String() + `","source":7}},
"data":{"id":12345,"attributes":{"status":"paid","currency":"USD","total":4900,"first_order_item":{"variant_id":"101","product_id":9}}}}`)

	event, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Meta.EventName != EventOrderCreated {
		t.Fatalf("expected normalized event name, got %q", event.Meta.EventName)
	}
	if event.ExternalOrderID() != "12345" {
		t.Fatalf("unexpected order id %q", event.ExternalOrderID())
	}
	if event.VariantID() != "101" {
		t.Fatalf("unexpected variant %q", event.VariantID())
	}
	if product := event.ProductID(); product == nil || *product != "9" {
		t.Fatalf("unexpected product %v", product)
	}
	buyer, err := event.BuyerID()
	if err != nil || buyer != userID {
		t.Fatalf("unexpected buyer %s %v", buyer, err)
	}
}

func TestParseEventRejectsInvalidPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":        `{"meta":`,
		"missing name":    `{"meta":{},"data":{"id":"1"}}`,
		"missing id":      `{"meta":{"event_name":"order_created"},"data":{}}`,
		"missing variant": `{"meta":{"event_name":"order_created"},"data":{"id":"1","attributes":{"first_order_item":{}}}}`,
		"negative total":  `{"meta":{"event_name":"order_created"},"data":{"id":"1","attributes":{"total":-5}}}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseEvent([]byte(payload)); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestBuyerIDRequiresMetadata(t *testing.T) {
	event, err := ParseEvent([]byte(`{"meta":{"event_name":"order_created","custom_data":{"user_id":"not-a-uuid"}},"data":{"id":"1"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := event.BuyerID(); !pkgerrors.IsCode(err, pkgerrors.CodeUnknownUser) {
		t.Fatalf("expected unknown user, got %v", err)
	}
}
