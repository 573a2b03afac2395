package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"
)

func TestWrap_Success(t *testing.T) {
	env := Wrap(zap.NewNop(), func() ([]string, error) {
		return []string{"a", "b"}, nil
	})
	if !env.Success {
		t.Fatal("expected success")
	}
	if len(env.Data) != 2 {
		t.Errorf("expected 2 items, got %d", len(env.Data))
	}
	if env.Err != nil {
		t.Errorf("expected nil error body, got %+v", env.Err)
	}
}

func TestWrap_KnownError(t *testing.T) {
	env := Wrap(zap.NewNop(), func() (int, error) {
		return 0, Validation("invalid table name", map[string]any{"name": "9bad"})
	})
	if env.Success {
		t.Fatal("expected failure")
	}
	if env.Err.Type != string(KindValidation) {
		t.Errorf("expected ValidationError, got %s", env.Err.Type)
	}
	if env.Err.Message != "invalid table name" {
		t.Errorf("unexpected message %q", env.Err.Message)
	}
	if env.Err.Details["name"] != "9bad" {
		t.Errorf("details not carried: %+v", env.Err.Details)
	}
}

func TestWrap_WrappedKnownError(t *testing.T) {
	env := Wrap(zap.NewNop(), func() (int, error) {
		return 0, fmt.Errorf("list tables: %w", Connectionf("not connected to database"))
	})
	if env.Success {
		t.Fatal("expected failure")
	}
	if env.Err.Type != string(KindConnection) {
		t.Errorf("expected ConnectionError through the wrap chain, got %s", env.Err.Type)
	}
}

func TestWrap_UnexpectedError(t *testing.T) {
	env := Wrap(zap.NewNop(), func() (int, error) {
		return 0, errors.New("boom")
	})
	if env.Success {
		t.Fatal("expected failure")
	}
	if env.Err.Type != "*errors.errorString" {
		t.Errorf("expected runtime type name, got %s", env.Err.Type)
	}
	if env.Err.Details["unexpected"] != true {
		t.Errorf("expected details.unexpected = true, got %+v", env.Err.Details)
	}
}

func TestMarshal_SuccessShape(t *testing.T) {
	data, err := json.Marshal(Ok(map[string]int{"rows": 5}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var parsed struct {
		Success bool           `json:"success"`
		Data    map[string]int `json:"data"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !parsed.Success || parsed.Data["rows"] != 5 {
		t.Errorf("wrong wire shape: %s", data)
	}
}

func TestMarshal_ErrorShape(t *testing.T) {
	env := Wrap(zap.NewNop(), func() (int, error) {
		return 0, ModelNotFoundf("failed to load model %q", "nope")
	})
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var parsed struct {
		Success bool `json:"success"`
		Error   struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.Success {
		t.Error("expected success=false")
	}
	if parsed.Error.Type != "ModelNotFoundError" {
		t.Errorf("expected ModelNotFoundError, got %s", parsed.Error.Type)
	}
}
