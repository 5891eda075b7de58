package persist

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// --- Item Shape Tests ---

func TestDynamoRecord_MarshalMap(t *testing.T) {
	item, err := attributevalue.MarshalMap(dynamoRecord{
		PK:        "app.theme",
		Value:     `"dark"`,
		UpdatedAt: "2026-08-31T12:00:00Z",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	pk, ok := item["pk"].(*types.AttributeValueMemberS)
	if !ok || pk.Value != "app.theme" {
		t.Errorf("expected pk attribute app.theme, got %v", item["pk"])
	}
	if _, ok := item["value"].(*types.AttributeValueMemberS); !ok {
		t.Errorf("expected string value attribute, got %v", item["value"])
	}
	if _, ok := item["updated_at"].(*types.AttributeValueMemberS); !ok {
		t.Errorf("expected string updated_at attribute, got %v", item["updated_at"])
	}

	var rec dynamoRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.PK != "app.theme" || rec.Value != `"dark"` {
		t.Errorf("unexpected round-trip %+v", rec)
	}
}
