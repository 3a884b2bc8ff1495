package event

import (
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	e := New("sender-1")
	e.Text = "hello"
	e.Payload = &Payload{Action: "orderPizza", Params: map[string]string{"size": "large"}}

	data, err := e.Encode()
	if err != nil {
		t.Fatal(err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.SenderID != "sender-1" || got.Text != "hello" {
		t.Errorf("decoded = %+v", got)
	}
	if got.Payload == nil || got.Payload.Action != "orderPizza" || got.Payload.Params["size"] != "large" {
		t.Errorf("payload = %+v", got.Payload)
	}
	if got.ReceivedAt == 0 {
		t.Error("ReceivedAt not stamped")
	}
}

func TestDecodeInvalid(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Error("garbage must not decode")
	}
	if _, err := Decode([]byte(`{"text":"no sender"}`)); err == nil {
		t.Error("missing sender must not decode")
	}
}
